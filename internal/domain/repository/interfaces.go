package repository

import (
	"context"

	"github.com/beajinsu/investment/internal/domain/models"
)

// SourceAdapter fetches and normalizes one upstream data source.
// Implementations return quotes only for entities they have data for;
// missing entities are omitted, never emitted with zero values. Any
// failure comes back as a *models.AdapterError.
type SourceAdapter interface {
	Name() string
	Fetch(ctx context.Context) ([]models.SourceQuote, error)
}

// SnapshotPublisher pushes each successful cycle's canonical records
// to an external consumer (message bus, downstream cache, ...).
type SnapshotPublisher interface {
	Publish(ctx context.Context, table string, records []models.CanonicalRecord) error
	Close() error
}

// SnapshotStore keeps the last known-good record set per table so a
// restarted process can paint something before its first cycle lands.
type SnapshotStore interface {
	Save(ctx context.Context, table string, records []models.CanonicalRecord) error
	Load(ctx context.Context, table string) ([]models.CanonicalRecord, error)
}

// Metrics records operational metrics for refresh cycles and sources.
type Metrics interface {
	RecordCycle(table, result string)
	RecordCycleSkipped(table string)
	RecordCycleDuration(table string, seconds float64)
	RecordAdapterError(source, reason string)
	RecordLastPrice(source, entity string, price float64)
}
