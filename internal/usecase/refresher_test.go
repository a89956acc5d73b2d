package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/beajinsu/investment/internal/domain/models"
	"github.com/beajinsu/investment/internal/viewmodel"
)

// blockingCycle serves scripted results and can hold a cycle open
// until released, so tests control exactly when results land.
type blockingCycle struct {
	mu      sync.Mutex
	results []cycleResult
	calls   int
	hold    chan struct{} // closed to release a held cycle
	started chan struct{} // signalled when Run is entered
}

type cycleResult struct {
	records []models.CanonicalRecord
	err     error
}

func newBlockingCycle(results ...cycleResult) *blockingCycle {
	return &blockingCycle{
		results: results,
		started: make(chan struct{}, 8),
	}
}

func (c *blockingCycle) Table() string { return "crypto" }

func (c *blockingCycle) Run(context.Context) ([]models.CanonicalRecord, error) {
	c.mu.Lock()
	i := c.calls
	c.calls++
	hold := c.hold
	c.mu.Unlock()

	c.started <- struct{}{}
	if hold != nil {
		<-hold
	}

	if i >= len(c.results) {
		i = len(c.results) - 1
	}
	return c.results[i].records, c.results[i].err
}

func (c *blockingCycle) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testVM() *viewmodel.Table {
	return viewmodel.NewTable([]viewmodel.Column{
		{Key: "name", Kind: viewmodel.KindText, InitialDir: viewmodel.Asc},
		{Key: "price", Kind: viewmodel.KindNumber, InitialDir: viewmodel.Desc},
	})
}

func oneRecord(price float64) []models.CanonicalRecord {
	return []models.CanonicalRecord{{
		EntityID:    "bitcoin",
		DisplayName: "비트코인",
		Fields:      map[string]*float64{"price": &price},
		AsOf:        time.Now(),
	}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestFirstCycleRunsImmediately(t *testing.T) {
	cycle := newBlockingCycle(cycleResult{records: oneRecord(100)})
	vm := testVM()
	r := NewRefresher(cycle, vm, time.Hour, time.Second, newRecordingMetrics(), testLogger(t))

	r.Start(context.Background())
	defer r.Stop()

	waitFor(t, "first cycle", vm.HasRecords)
	snap := vm.Snapshot()
	if snap.Stale || snap.LastError != "" {
		t.Fatalf("fresh data marked stale=%v err=%q", snap.Stale, snap.LastError)
	}
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	cycle := newBlockingCycle(cycleResult{records: oneRecord(100)})
	cycle.hold = make(chan struct{})
	vm := testVM()
	m := newRecordingMetrics()
	r := NewRefresher(cycle, vm, time.Hour, time.Minute, m, testLogger(t))

	r.Start(context.Background())
	defer r.Stop()
	<-cycle.started

	// Trigger while the first cycle is still held open.
	r.RefreshNow()
	waitFor(t, "skip to be recorded", func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.skipped >= 1
	})
	if n := cycle.callCount(); n != 1 {
		t.Fatalf("cycle ran %d times, want 1", n)
	}

	close(cycle.hold)
	waitFor(t, "held cycle to land", vm.HasRecords)
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	cycle := newBlockingCycle(cycleResult{records: oneRecord(100)})
	cycle.hold = make(chan struct{})
	vm := testVM()
	r := NewRefresher(cycle, vm, time.Hour, time.Minute, newRecordingMetrics(), testLogger(t))

	r.Start(context.Background())
	<-cycle.started
	r.Stop()
	close(cycle.hold)

	// The held cycle finishes after Stop; its result must not land.
	time.Sleep(50 * time.Millisecond)
	if vm.HasRecords() {
		t.Fatal("result applied after Stop returned")
	}
}

func TestFailedCycleKeepsPriorData(t *testing.T) {
	cycle := newBlockingCycle(
		cycleResult{records: oneRecord(100)},
		cycleResult{err: &models.ReconcileError{Causes: []*models.AdapterError{
			models.NewAdapterError("coingecko", models.ReasonTransport, fmt.Errorf("dial timeout")),
		}}},
	)
	vm := testVM()
	m := newRecordingMetrics()
	r := NewRefresher(cycle, vm, time.Hour, time.Second, m, testLogger(t))

	r.Start(context.Background())
	defer r.Stop()
	waitFor(t, "first cycle", vm.HasRecords)

	r.RefreshNow()
	waitFor(t, "error cycle", func() bool { return vm.Snapshot().Stale })

	snap := vm.Snapshot()
	if len(snap.Records) != 1 {
		t.Fatalf("prior records dropped: %d", len(snap.Records))
	}
	if snap.LastError == "" {
		t.Fatal("lastError not set")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cycles["crypto/ok"] != 1 || m.cycles["crypto/error"] != 1 {
		t.Fatalf("cycle metrics: %v", m.cycles)
	}
}

// memoryStore is an in-process SnapshotStore for warm-start tests.
type memoryStore struct {
	mu   sync.Mutex
	data map[string][]models.CanonicalRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]models.CanonicalRecord)}
}

func (s *memoryStore) Save(_ context.Context, table string, records []models.CanonicalRecord) error {
	s.mu.Lock()
	s.data[table] = records
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Load(_ context.Context, table string) ([]models.CanonicalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[table], nil
}

func TestWarmStartSeedsStaleRecords(t *testing.T) {
	store := newMemoryStore()
	if err := store.Save(context.Background(), "crypto", oneRecord(95)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Hold the first cycle open so only the warm start can paint.
	cycle := newBlockingCycle(cycleResult{records: oneRecord(100)})
	cycle.hold = make(chan struct{})
	vm := testVM()
	r := NewRefresher(cycle, vm, time.Hour, time.Minute, newRecordingMetrics(), testLogger(t),
		WithSnapshotStore(store))

	r.Start(context.Background())
	defer r.Stop()

	snap := vm.Snapshot()
	if len(snap.Records) != 1 || !snap.Stale {
		t.Fatalf("warm start: records=%d stale=%v", len(snap.Records), snap.Stale)
	}

	// The live cycle then replaces the seed and clears staleness.
	close(cycle.hold)
	waitFor(t, "live cycle", func() bool { return !vm.Snapshot().Stale })
}

func TestRefreshNowCollapsesWhilePending(t *testing.T) {
	cycle := newBlockingCycle(cycleResult{records: oneRecord(100)})
	vm := testVM()
	r := NewRefresher(cycle, vm, time.Hour, time.Second, newRecordingMetrics(), testLogger(t))

	// Before Start the trigger channel just buffers one request.
	r.RefreshNow()
	r.RefreshNow()
	r.RefreshNow()

	r.Start(context.Background())
	defer r.Stop()

	waitFor(t, "first cycle", vm.HasRecords)
	time.Sleep(50 * time.Millisecond)
	// Immediate cycle plus at most one collapsed trigger.
	if n := cycle.callCount(); n > 2 {
		t.Fatalf("burst of triggers ran %d cycles, want at most 2", n)
	}
}
