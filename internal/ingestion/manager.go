package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/credio/credio-alerts/internal/catalog"
	"github.com/credio/credio-alerts/internal/metrics"
	"github.com/credio/credio-alerts/internal/models"
	"github.com/credio/credio-alerts/internal/repository"
)

// applyTimeout bounds persisting and publishing one event once it has been
// planned. It is detached from the poll context so cancellation cannot
// split an event between the store and the catalog.
const applyTimeout = 10 * time.Second

var errCommitConflict = errors.New("catalog changed while event was being persisted")

// Publisher receives every created or updated event once.
type Publisher interface {
	Publish(ctx context.Context, d models.Disaster) error
}

// DisasterStore persists events before they become visible. GetByID
// returns repository.ErrNotFound for ids it has never stored.
type DisasterStore interface {
	UpsertDisaster(ctx context.Context, d *models.Disaster) error
	GetByID(ctx context.Context, id string) (*models.Disaster, error)
}

type Options struct {
	StaleAfter           time.Duration
	ResolvedRetention    time.Duration
	HousekeepingInterval time.Duration
}

// PollResult summarizes one poll cycle of one source.
type PollResult struct {
	Source    string
	Fetched   int
	Created   int
	Updated   int
	Unchanged int
	Invalid   int
	Failed    int
}

type poller struct {
	src      Source
	interval time.Duration
	trigger  chan struct{}
	watch    string
}

type Manager struct {
	catalog    *catalog.Catalog
	store      DisasterStore
	retrier    *Retrier
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *metrics.Metrics
	opts       Options
	publishers []Publisher

	pollers []*poller

	// applyMu serializes plan, persist, commit and publish so versions of
	// one event reach publishers in order.
	applyMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(
	cat *catalog.Catalog,
	store DisasterStore,
	retrier *Retrier,
	clock clockwork.Clock,
	logger *slog.Logger,
	m *metrics.Metrics,
	opts Options,
	publishers ...Publisher,
) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		catalog:    cat,
		store:      store,
		retrier:    retrier,
		clock:      clock,
		logger:     logger,
		metrics:    m,
		opts:       opts,
		publishers: publishers,
	}
}

// AddSource registers a source to be polled every interval once the
// manager starts. Fetches go through a per-source circuit breaker.
func (m *Manager) AddSource(src Source, interval time.Duration) {
	m.pollers = append(m.pollers, &poller{
		src:      withBreaker(src, m.logger, m.metrics),
		interval: interval,
		trigger:  make(chan struct{}, 1),
	})
}

// WatchSource polls the named source immediately whenever path changes.
func (m *Manager) WatchSource(name, path string) error {
	for _, p := range m.pollers {
		if p.src.Name() == name {
			p.watch = path
			return nil
		}
	}
	return fmt.Errorf("unknown source %q", name)
}

func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	for _, p := range m.pollers {
		m.wg.Add(1)
		go m.runPoller(ctx, p)

		if p.watch != "" {
			m.wg.Add(1)
			go func(p *poller) {
				defer m.wg.Done()
				if err := watchFile(ctx, p.watch, m.logger, func() { m.Trigger(p.src.Name()) }); err != nil {
					m.logger.Error("file watch stopped", "source", p.src.Name(), "error", err)
				}
			}(p)
		}
	}

	if m.opts.HousekeepingInterval > 0 {
		m.wg.Add(1)
		go m.runHousekeeping(ctx)
	}
}

func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("ingestion manager stopped")
}

// Trigger requests an immediate poll of the named source. Requests made
// while one is already pending are coalesced.
func (m *Manager) Trigger(name string) bool {
	for _, p := range m.pollers {
		if p.src.Name() != name {
			continue
		}
		select {
		case p.trigger <- struct{}{}:
		default:
		}
		return true
	}
	return false
}

func (m *Manager) runPoller(ctx context.Context, p *poller) {
	defer m.wg.Done()
	name := p.src.Name()
	m.logger.Info("starting poller", "source", name, "interval", p.interval)

	ticker := m.clock.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial poll
	m.poll(ctx, p.src)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("poller shutting down", "source", name)
			return
		case <-ticker.Chan():
			m.poll(ctx, p.src)
		case <-p.trigger:
			m.poll(ctx, p.src)
		}
	}
}

func (m *Manager) poll(ctx context.Context, src Source) {
	if _, err := m.PollSource(ctx, src); err != nil && ctx.Err() == nil {
		m.logger.Error("poll failed", "source", src.Name(), "error", err)
	}
}

// RunCycle polls every registered source once, in registration order. A
// failing source never prevents the next one from running.
func (m *Manager) RunCycle(ctx context.Context) []PollResult {
	results := make([]PollResult, 0, len(m.pollers))
	for _, p := range m.pollers {
		if ctx.Err() != nil {
			break
		}
		res, err := m.PollSource(ctx, p.src)
		if err != nil && ctx.Err() == nil {
			m.logger.Error("poll failed", "source", p.src.Name(), "error", err)
		}
		results = append(results, res)
	}
	return results
}

// PollSource fetches src with retries and applies its records. Records are
// deduplicated by event id so the last state in a batch wins.
func (m *Manager) PollSource(ctx context.Context, src Source) (PollResult, error) {
	name := src.Name()
	res := PollResult{Source: name}
	m.logger.Debug("polling", "source", name)

	var records []RawRecord
	start := m.clock.Now()
	err := m.retrier.Do(ctx, name, func(ctx context.Context) error {
		recs, err := src.Fetch(ctx)
		if err != nil {
			m.metrics.SourceFetches.WithLabelValues(name, "failure").Inc()
			return err
		}
		m.metrics.SourceFetches.WithLabelValues(name, "success").Inc()
		records = recs
		return nil
	})
	m.metrics.SourceFetchDuration.WithLabelValues(name).Observe(m.clock.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrRetriesExhausted) {
			m.metrics.SourceFetches.WithLabelValues(name, "exhausted").Inc()
			m.logger.Error("source unavailable, skipping cycle", "source", name, "error", err)
		}
		return res, err
	}
	res.Fetched = len(records)

	order := make([]string, 0, len(records))
	latest := make(map[string]models.Disaster, len(records))
	for _, r := range records {
		d, err := r.Normalize()
		if err != nil {
			res.Invalid++
			m.logger.Debug("dropping invalid record", "source", name, "error", err)
			continue
		}
		if _, seen := latest[d.ID]; !seen {
			order = append(order, d.ID)
		}
		latest[d.ID] = d
	}

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			m.updateActiveGauge()
			return res, err
		}

		cand, err := m.apply(ctx, latest[id])
		if err != nil {
			res.Failed++
			m.logger.Error("error applying event", "id", id, "source", name, "error", err)
			continue
		}
		switch cand.Change {
		case catalog.ChangeCreated:
			res.Created++
		case catalog.ChangeUpdated:
			res.Updated++
		default:
			res.Unchanged++
		}
	}
	m.updateActiveGauge()

	m.logger.Debug("poll complete",
		"source", name,
		"fetched", res.Fetched,
		"created", res.Created,
		"updated", res.Updated,
		"unchanged", res.Unchanged,
		"invalid", res.Invalid,
		"failed", res.Failed,
	)
	return res, nil
}

// Inject runs a single record through the same path as polled records and
// reports what it did to the event. Only created and updated events are
// published.
func (m *Manager) Inject(ctx context.Context, rec RawRecord) (models.Disaster, catalog.Change, error) {
	d, err := rec.Normalize()
	if err != nil {
		return models.Disaster{}, catalog.ChangeNone, err
	}
	cand, err := m.apply(ctx, d)
	if err != nil {
		return models.Disaster{}, catalog.ChangeNone, err
	}
	m.updateActiveGauge()
	return cand.Disaster, cand.Change, nil
}

func (m *Manager) apply(ctx context.Context, d models.Disaster) (catalog.Candidate, error) {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	if err := m.restore(ctx, d.ID); err != nil {
		return catalog.Candidate{}, err
	}
	cand := m.catalog.Plan(d, m.clock.Now())
	return cand, m.commit(ctx, cand)
}

// restore reloads a stored event the catalog no longer holds so its version
// keeps counting up from the persisted one. Must be called with applyMu held.
func (m *Manager) restore(ctx context.Context, id string) error {
	if _, ok := m.catalog.Get(id); ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), applyTimeout)
	defer cancel()

	stored, err := m.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error loading stored state of %s: %w", id, err)
	}
	if m.catalog.Restore(*stored) {
		m.logger.Debug("restored disaster from store", "id", id, "version", stored.Version, "status", stored.Status.String())
	}
	return nil
}

// commit must be called with applyMu held.
func (m *Manager) commit(ctx context.Context, cand catalog.Candidate) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), applyTimeout)
	defer cancel()

	if err := m.store.UpsertDisaster(ctx, &cand.Disaster); err != nil {
		return fmt.Errorf("error persisting %s: %w", cand.Disaster.ID, err)
	}
	if !m.catalog.Commit(cand) {
		return fmt.Errorf("%s: %w", cand.Disaster.ID, errCommitConflict)
	}
	if !cand.Publishable() {
		return nil
	}

	m.metrics.EventsPublished.WithLabelValues(cand.Change.String()).Inc()
	m.logger.Info("publishing disaster",
		"id", cand.Disaster.ID,
		"version", cand.Disaster.Version,
		"change", cand.Change.String(),
		"type", cand.Disaster.Type.String(),
		"severity", cand.Disaster.Severity.String(),
		"status", cand.Disaster.Status.String(),
	)
	for _, p := range m.publishers {
		if err := p.Publish(ctx, cand.Disaster); err != nil {
			m.logger.Error("error publishing disaster", "id", cand.Disaster.ID, "version", cand.Disaster.Version, "error", err)
		}
	}
	return nil
}

// Housekeep resolves events no feed has reported for StaleAfter and drops
// resolved events older than ResolvedRetention from memory.
func (m *Manager) Housekeep(ctx context.Context) (resolved, pruned int) {
	now := m.clock.Now()

	if m.opts.StaleAfter > 0 {
		for _, id := range m.catalog.Stale(now.Add(-m.opts.StaleAfter)) {
			if ctx.Err() != nil {
				break
			}
			if m.resolve(ctx, id, now) {
				resolved++
			}
		}
	}
	if m.opts.ResolvedRetention > 0 {
		pruned = m.catalog.Prune(now.Add(-m.opts.ResolvedRetention))
	}
	m.updateActiveGauge()

	if resolved > 0 || pruned > 0 {
		m.logger.Info("housekeeping complete", "resolved", resolved, "pruned", pruned)
	}
	return resolved, pruned
}

func (m *Manager) resolve(ctx context.Context, id string, now time.Time) bool {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	cand, ok := m.catalog.PlanResolve(id, now)
	if !ok {
		return false
	}
	if err := m.commit(ctx, cand); err != nil {
		m.logger.Error("error resolving stale disaster", "id", id, "error", err)
		return false
	}
	return true
}

func (m *Manager) runHousekeeping(ctx context.Context) {
	defer m.wg.Done()

	ticker := m.clock.NewTicker(m.opts.HousekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Housekeep(ctx)
		}
	}
}

func (m *Manager) updateActiveGauge() {
	m.metrics.ActiveDisasters.Set(float64(len(m.catalog.Active())))
}
