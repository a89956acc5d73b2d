package usecase

import (
	"context"
	"sort"

	"github.com/beajinsu/investment/internal/viewmodel"
)

// TableEntry couples one table view-model with the refresher that
// feeds it.
type TableEntry struct {
	Name      string
	VM        *viewmodel.Table
	Refresher *Refresher
}

// Dashboard is the set of named tables the service exposes. It is the
// single wiring point the HTTP and WebSocket layers talk to.
type Dashboard struct {
	tables map[string]*TableEntry
}

// NewDashboard builds a dashboard from table entries.
func NewDashboard(entries ...*TableEntry) *Dashboard {
	tables := make(map[string]*TableEntry, len(entries))
	for _, e := range entries {
		tables[e.Name] = e
	}
	return &Dashboard{tables: tables}
}

// Table returns the named entry, or nil when unknown.
func (d *Dashboard) Table(name string) *TableEntry {
	return d.tables[name]
}

// Names lists table names in stable order.
func (d *Dashboard) Names() []string {
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches every table's refresher.
func (d *Dashboard) Start(ctx context.Context) {
	for _, e := range d.tables {
		e.Refresher.Start(ctx)
	}
}

// Stop halts every refresher; no cycle result lands after it returns.
func (d *Dashboard) Stop() {
	for _, e := range d.tables {
		e.Refresher.Stop()
	}
}
