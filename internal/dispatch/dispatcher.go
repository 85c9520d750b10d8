// Package dispatch turns published disaster events into per-connection
// alert frames, delivering each event version to a connection at most once.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/gateway"
	"github.com/credio/credio-alerts/internal/metrics"
	"github.com/credio/credio-alerts/internal/models"
	"github.com/credio/credio-alerts/internal/worker"
)

// State is the lifecycle of one event version inside the dispatcher.
type State int

const (
	StateIngested State = iota
	StateResolvingAudience
	StateDelivering
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateIngested:
		return "ingested"
	case StateResolvingAudience:
		return "resolving_audience"
	case StateDelivering:
		return "delivering"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Sender is the outbound half of the connection gateway.
type Sender interface {
	Send(connID string, msg gateway.Message) error
}

// Audience resolves who should hear about an event.
type Audience interface {
	ResolveInterestedConnections(d *models.Disaster) []string
	LastLocation(connID string) (geo.Point, bool)
}

type Report struct {
	DisasterID string
	Version    int64
	State      State
	Stale      bool // a newer version was already dispatched
	Audience   int
	Sent       int
	Duplicates int
	Failed     int
}

type Config struct {
	Workers    int
	BufferSize int
}

type Dispatcher struct {
	audience Audience
	sender   Sender
	pool     *worker.WorkerPool
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	latest map[string]int64 // highest version dispatched per disaster

	ledgers ledgers
}

func New(audience Audience, sender Sender, cfg Config, clock clockwork.Clock, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		audience: audience,
		sender:   sender,
		clock:    clock,
		logger:   logger,
		metrics:  m,
		latest:   make(map[string]int64),
		ledgers:  ledgers{byConn: make(map[string]*ledger)},
	}
	d.pool = worker.NewWorkerPool(cfg.Workers, cfg.BufferSize, d.process)
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

// Stop drains queued events and waits for in-flight dispatches.
func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

// Publish queues an event version for dispatch. Versions of the same
// disaster are dispatched in the order they are published.
func (d *Dispatcher) Publish(ctx context.Context, event models.Disaster) error {
	if err := d.pool.Submit(ctx, event.ID, event); err != nil {
		return fmt.Errorf("queueing %s v%d: %w", event.ID, event.Version, err)
	}
	return nil
}

func (d *Dispatcher) process(ctx context.Context, job worker.Job) error {
	event, ok := job.(models.Disaster)
	if !ok {
		return fmt.Errorf("unexpected job type %T", job)
	}
	d.Dispatch(ctx, event)
	return nil
}

// Dispatch runs one event version through audience resolution and delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, event models.Disaster) Report {
	start := d.clock.Now()
	report := Report{DisasterID: event.ID, Version: event.Version, State: StateIngested}

	if !d.advance(event.ID, event.Version) {
		report.Stale = true
		report.State = StateSettled
		d.logger.Debug("skipping stale version", "disaster_id", event.ID, "version", event.Version)
		return report
	}

	report.State = StateResolvingAudience
	audience := d.audience.ResolveInterestedConnections(&event)
	report.Audience = len(audience)

	report.State = StateDelivering
	for _, connID := range audience {
		if ctx.Err() != nil {
			break
		}
		switch d.deliver(connID, &event) {
		case outcomeSent:
			report.Sent++
		case outcomeDuplicate:
			report.Duplicates++
		case outcomeFailed:
			report.Failed++
		}
	}

	report.State = StateSettled
	d.metrics.DispatchDuration.Observe(d.clock.Since(start).Seconds())
	d.logger.Info("dispatched disaster",
		"disaster_id", event.ID,
		"version", event.Version,
		"status", event.Status,
		"audience", report.Audience,
		"sent", report.Sent,
		"duplicates", report.Duplicates,
		"failed", report.Failed,
	)
	return report
}

// DeliverCurrent sends the given version to a single connection, typically
// right after it subscribes. It reports whether a frame was queued.
func (d *Dispatcher) DeliverCurrent(_ context.Context, connID string, event models.Disaster) bool {
	return d.deliver(connID, &event) == outcomeSent
}

// Forget drops the delivery ledger of a closed connection.
func (d *Dispatcher) Forget(connID string) {
	d.ledgers.forget(connID)
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeDuplicate
	outcomeFailed
)

func (d *Dispatcher) deliver(connID string, event *models.Disaster) outcome {
	key := deliveryKey{disasterID: event.ID, version: event.Version}
	if !d.ledgers.get(connID).claim(key) {
		d.metrics.DuplicatesSkipped.Inc()
		return outcomeDuplicate
	}

	var loc *geo.Point
	if p, ok := d.audience.LastLocation(connID); ok {
		loc = &p
	}

	msg, err := buildMessage(event, loc, d.clock.Now().UTC())
	if err != nil {
		d.logger.Error("failed to build alert", "disaster_id", event.ID, "error", err)
		return outcomeFailed
	}

	if err := d.sender.Send(connID, msg); err != nil {
		// the connection is going away; its disconnect cleans up the rest
		d.logger.Debug("alert delivery failed", "conn_id", connID, "disaster_id", event.ID, "version", event.Version, "error", err)
		d.metrics.DeliveryFailures.Inc()
		d.Forget(connID)
		return outcomeFailed
	}

	d.metrics.AlertsSent.WithLabelValues(msg.Type).Inc()
	return outcomeSent
}

// advance records version as the latest for id unless a newer one was
// already seen. Re-dispatching the same version is allowed; the ledger
// keeps it from reaching a connection twice.
func (d *Dispatcher) advance(id string, version int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if version < d.latest[id] {
		return false
	}
	d.latest[id] = version
	return true
}
