package viewmodel

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/beajinsu/investment/internal/domain/models"
)

// Snapshot is the observable state handed to the presentation layer
// on every change. Records are already ordered under the active sort;
// Visibility is a projection hint the renderer applies when painting.
type Snapshot struct {
	Records    []models.CanonicalRecord `json:"records"`
	Columns    []Column                 `json:"columns"`
	SortKey    string                   `json:"sortKey,omitempty"`
	SortDir    Direction                `json:"sortDir,omitempty"`
	Visibility map[string]bool          `json:"visibility"`
	UpdatedAt  time.Time                `json:"updatedAt"`
	LastError  string                   `json:"lastError,omitempty"`
	Stale      bool                     `json:"stale"`
}

// Observer receives one snapshot per view-model operation.
type Observer func(Snapshot)

// Option configures a Table.
type Option func(*Table)

// WithLocale sets the collation language for text columns.
func WithLocale(tag language.Tag) Option {
	return func(t *Table) { t.collator = collate.New(tag) }
}

// WithDefaultSort applies an initial sort as soon as data arrives.
func WithDefaultSort(key string, dir Direction) Option {
	return func(t *Table) {
		t.sortKey = key
		t.sortDir = dir
	}
}

// Table is a generic sortable, column-toggleable view-model. It owns
// the canonical record list plus per-column sort-direction memory and
// visibility state, both of which survive data refreshes. It knows
// nothing about rendering; consumers subscribe and paint snapshots.
type Table struct {
	mu       sync.Mutex
	columns  []Column
	colIndex map[string]Column
	collator *collate.Collator

	records   []models.CanonicalRecord
	nextDir   map[string]Direction
	visible   map[string]bool
	sortKey   string
	sortDir   Direction
	updatedAt time.Time
	lastError string
	stale     bool

	observers []Observer
}

// NewTable builds a view-model for the given column schema.
func NewTable(columns []Column, opts ...Option) *Table {
	t := &Table{
		columns:  columns,
		colIndex: make(map[string]Column, len(columns)),
		nextDir:  make(map[string]Direction, len(columns)),
		visible:  make(map[string]bool, len(columns)),
		collator: collate.New(language.Korean),
	}
	for _, c := range columns {
		t.colIndex[c.Key] = c
		dir := c.InitialDir
		if dir == "" {
			dir = Asc
		}
		t.nextDir[c.Key] = dir
		t.visible[c.Key] = !c.Hidden
	}
	for _, opt := range opts {
		opt(t)
	}
	// A default sort consumes that column's first direction.
	if t.sortKey != "" {
		t.nextDir[t.sortKey] = t.sortDir.flip()
	}
	return t
}

// Subscribe registers an observer for change notifications. Not safe
// to call concurrently with operations; wire observers up front.
func (t *Table) Subscribe(obs Observer) {
	t.mu.Lock()
	t.observers = append(t.observers, obs)
	t.mu.Unlock()
}

// SetData replaces the record list wholesale. Sort preference and
// column visibility are untouched; if a sort is active the new list
// is re-ordered under it, otherwise insertion order is kept.
func (t *Table) SetData(records []models.CanonicalRecord) Snapshot {
	t.mu.Lock()
	t.records = append([]models.CanonicalRecord(nil), records...)
	if t.sortKey != "" {
		t.applySort(t.sortKey, t.sortDir)
	}
	t.updatedAt = time.Now()
	t.lastError = ""
	t.stale = false
	return t.emit()
}

// SetError keeps whatever records are displayed and tags the snapshot
// with the failure, so a dead upstream never blanks a live table.
func (t *Table) SetError(msg string) Snapshot {
	t.mu.Lock()
	t.lastError = msg
	t.stale = true
	return t.emit()
}

// SeedStale installs records without clearing the staleness marker,
// used to warm-start from a persisted snapshot before the first cycle.
func (t *Table) SeedStale(records []models.CanonicalRecord, asOf time.Time) Snapshot {
	t.mu.Lock()
	t.records = append([]models.CanonicalRecord(nil), records...)
	if t.sortKey != "" {
		t.applySort(t.sortKey, t.sortDir)
	}
	t.updatedAt = asOf
	t.stale = true
	return t.emit()
}

// SortBy sorts by the named column using its remembered direction,
// then flips that direction for the next call (click-to-toggle).
// Unknown keys are a no-op returning the unchanged snapshot.
func (t *Table) SortBy(key string) Snapshot {
	t.mu.Lock()
	if _, ok := t.colIndex[key]; !ok {
		return t.emitCurrent()
	}
	dir := t.nextDir[key]
	t.applySort(key, dir)
	t.sortKey = key
	t.sortDir = dir
	t.nextDir[key] = dir.flip()
	return t.emit()
}

// ToggleColumn sets a column's visibility. The record list and sort
// order are untouched; unknown keys are a no-op.
func (t *Table) ToggleColumn(key string, visible bool) Snapshot {
	t.mu.Lock()
	if _, ok := t.colIndex[key]; !ok {
		return t.emitCurrent()
	}
	t.visible[key] = visible
	return t.emit()
}

// Snapshot returns the current state without emitting a notification.
func (t *Table) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// HasRecords reports whether any data is currently held.
func (t *Table) HasRecords() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records) > 0
}

// applySort stably re-orders records by the given column. Absent
// values sort after all present ones regardless of direction, and
// ties keep their prior relative order so repeated refreshes do not
// make equal rows jump around.
func (t *Table) applySort(key string, dir Direction) {
	col := t.colIndex[key]
	sort.SliceStable(t.records, func(i, j int) bool {
		a, b := t.records[i], t.records[j]
		if col.Kind == KindText {
			return t.lessText(a.DisplayName, b.DisplayName, dir)
		}
		return lessNumber(a.Field(key), b.Field(key), dir)
	})
}

func (t *Table) lessText(a, b string, dir Direction) bool {
	cmp := t.collator.CompareString(a, b)
	if dir == Desc {
		return cmp > 0
	}
	return cmp < 0
}

func lessNumber(a, b *float64, dir Direction) bool {
	// nil sorts last in both directions
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	if dir == Desc {
		return *a > *b
	}
	return *a < *b
}

// emit builds a snapshot, releases the lock, and notifies observers
// synchronously, exactly once per operation.
func (t *Table) emit() Snapshot {
	snap := t.snapshotLocked()
	obs := t.observers
	t.mu.Unlock()
	for _, o := range obs {
		o(snap)
	}
	return snap
}

// emitCurrent releases the lock and returns the unchanged snapshot
// without notifying anyone (no-op operations stay silent).
func (t *Table) emitCurrent() Snapshot {
	snap := t.snapshotLocked()
	t.mu.Unlock()
	return snap
}

func (t *Table) snapshotLocked() Snapshot {
	records := make([]models.CanonicalRecord, len(t.records))
	copy(records, t.records)
	visibility := make(map[string]bool, len(t.visible))
	for k, v := range t.visible {
		visibility[k] = v
	}
	return Snapshot{
		Records:    records,
		Columns:    t.columns,
		SortKey:    t.sortKey,
		SortDir:    t.sortDir,
		Visibility: visibility,
		UpdatedAt:  t.updatedAt,
		LastError:  t.lastError,
		Stale:      t.stale,
	}
}
