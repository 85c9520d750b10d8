package ingestion

import (
	"context"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/credio/credio-alerts/internal/metrics"
)

const (
	breakerFailureThreshold = 5
	breakerOpenTimeout      = 5 * time.Minute
)

// guardedSource wraps a source with a circuit breaker. An open breaker
// fails fast, which the retrier treats like any other transient failure.
type guardedSource struct {
	Source
	cb *gobreaker.CircuitBreaker[[]RawRecord]
}

func withBreaker(src Source, logger *slog.Logger, m *metrics.Metrics) *guardedSource {
	name := src.Name()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("source circuit breaker changed state", "source", name, "from", from.String(), "to", to.String())
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			m.SourceBreakerOpen.WithLabelValues(name).Set(open)
		},
	}

	return &guardedSource{
		Source: src,
		cb:     gobreaker.NewCircuitBreaker[[]RawRecord](settings),
	}
}

func (g *guardedSource) Fetch(ctx context.Context) ([]RawRecord, error) {
	return g.cb.Execute(func() ([]RawRecord, error) {
		return g.Source.Fetch(ctx)
	})
}
