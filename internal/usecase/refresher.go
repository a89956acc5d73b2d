package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beajinsu/investment/internal/domain/models"
	drepo "github.com/beajinsu/investment/internal/domain/repository"
	"github.com/beajinsu/investment/internal/viewmodel"
	applogger "github.com/beajinsu/investment/pkg/logger"
)

// Cycle runs one fetch-and-reconcile pass.
type Cycle interface {
	Table() string
	Run(ctx context.Context) ([]models.CanonicalRecord, error)
}

// Refresher drives a Cycle on a fixed period and applies its result to
// a table view-model. One Refresher owns one table.
//
// Guarantees:
//   - a tick that fires while a cycle is in flight is skipped, never
//     queued, so rate-limited upstreams see bounded concurrency;
//   - after Stop returns, no in-flight result is applied;
//   - a failed cycle keeps the prior records and tags the snapshot,
//     and the timer is always re-armed.
type Refresher struct {
	cycle     Cycle
	vm        *viewmodel.Table
	interval  time.Duration
	timeout   time.Duration
	publisher drepo.SnapshotPublisher
	store     drepo.SnapshotStore
	metrics   drepo.Metrics
	logger    *applogger.Logger

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	trigger chan struct{}
	done    chan struct{}

	inFlight atomic.Bool
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithPublisher attaches an optional per-cycle publisher.
func WithPublisher(p drepo.SnapshotPublisher) RefresherOption {
	return func(r *Refresher) { r.publisher = p }
}

// WithSnapshotStore attaches an optional last-known-good store.
func WithSnapshotStore(s drepo.SnapshotStore) RefresherOption {
	return func(r *Refresher) { r.store = s }
}

// NewRefresher creates a scheduler for one table.
func NewRefresher(cycle Cycle, vm *viewmodel.Table, interval, timeout time.Duration, metrics drepo.Metrics, logger *applogger.Logger, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		cycle:    cycle,
		vm:       vm,
		interval: interval,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start seeds the view-model from the snapshot store when available,
// fires one cycle immediately, then ticks on the configured period.
func (r *Refresher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.warmStart(ctx)
	r.runCycle(ctx)

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runCycle(ctx)
			case <-r.trigger:
				// Manual refresh does not reset the periodic phase:
				// the ticker keeps its own cadence.
				r.runCycle(ctx)
			}
		}
	}()
}

// Stop cancels pending and future ticks. An in-flight cycle may run to
// completion but its result is discarded once Stop has returned.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		<-r.done
	}
}

// RefreshNow requests an out-of-band cycle. It never blocks; if a
// refresh is already pending the request collapses into it.
func (r *Refresher) RefreshNow() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// runCycle starts one cycle unless another is still in flight, in
// which case the tick is dropped.
func (r *Refresher) runCycle(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.metrics.RecordCycleSkipped(r.cycle.Table())
		r.logger.Debug("cycle skipped, previous still in flight",
			applogger.String("table", r.cycle.Table()))
		return
	}

	go func() {
		defer r.inFlight.Store(false)

		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		start := time.Now()
		records, err := r.cycle.Run(cctx)
		r.metrics.RecordCycleDuration(r.cycle.Table(), time.Since(start).Seconds())

		r.apply(ctx, records, err)
	}()
}

// apply installs a cycle result into the view-model, unless the
// refresher was stopped while the cycle was in flight.
func (r *Refresher) apply(ctx context.Context, records []models.CanonicalRecord, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	if err != nil {
		r.metrics.RecordCycle(r.cycle.Table(), "error")
		r.logger.Error("refresh cycle failed",
			applogger.String("table", r.cycle.Table()),
			applogger.Error(err),
		)
		r.vm.SetError(err.Error())
		return
	}

	r.metrics.RecordCycle(r.cycle.Table(), "ok")
	r.vm.SetData(records)

	if r.publisher != nil {
		if perr := r.publisher.Publish(ctx, r.cycle.Table(), records); perr != nil {
			r.logger.Warn("snapshot publish failed",
				applogger.String("table", r.cycle.Table()),
				applogger.Error(perr),
			)
		}
	}
	if r.store != nil {
		if serr := r.store.Save(ctx, r.cycle.Table(), records); serr != nil {
			r.logger.Warn("snapshot store failed",
				applogger.String("table", r.cycle.Table()),
				applogger.Error(serr),
			)
		}
	}
}

// warmStart paints the last persisted record set, marked stale, so a
// restart shows data before the first cycle lands.
func (r *Refresher) warmStart(ctx context.Context) {
	if r.store == nil || r.vm.HasRecords() {
		return
	}
	records, err := r.store.Load(ctx, r.cycle.Table())
	if err != nil || len(records) == 0 {
		return
	}
	asOf := time.Time{}
	for _, rec := range records {
		if rec.AsOf.After(asOf) {
			asOf = rec.AsOf
		}
	}
	r.vm.SeedStale(records, asOf)
	r.logger.Info("warm-started from cached snapshot",
		applogger.String("table", r.cycle.Table()),
		applogger.Int("records", len(records)),
	)
}
