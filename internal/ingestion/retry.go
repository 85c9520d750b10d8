package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

var ErrRetriesExhausted = errors.New("retries exhausted")

// Backoff decides how long to wait after the given failed attempt
// (0-based) before the next one.
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff waits Initial, then doubles, capped at Max when set.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	return d
}

// Retrier runs an operation up to MaxAttempts times, sleeping on Clock
// between attempts.
type Retrier struct {
	Backoff     Backoff
	MaxAttempts int
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

func NewRetrier(maxAttempts int, initial time.Duration, clock clockwork.Clock, logger *slog.Logger) *Retrier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		Backoff:     ExponentialBackoff{Initial: initial},
		MaxAttempts: maxAttempts,
		Clock:       clock,
		Logger:      logger,
	}
}

// Do calls op until it succeeds or the attempts run out. Every failed
// attempt is logged. Cancelling ctx stops the loop between attempts.
func (r *Retrier) Do(ctx context.Context, source string, op func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		r.Logger.Warn("transient source failure",
			"source", source,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"error", err,
		)

		if attempt == attempts-1 {
			break
		}
		if !r.sleep(ctx, r.Backoff.NextDelay(attempt)) {
			return ctx.Err()
		}
	}

	return fmt.Errorf("%s: %w after %d attempts: %w", source, ErrRetriesExhausted, attempts, lastErr)
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := r.Clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
