package usecase

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/beajinsu/investment/internal/domain/models"
	drepo "github.com/beajinsu/investment/internal/domain/repository"
	applogger "github.com/beajinsu/investment/pkg/logger"
)

// SourceBinding maps one adapter's quote fields onto canonical record
// columns. ChangeColumn and MetricColumns are optional.
type SourceBinding struct {
	Adapter      drepo.SourceAdapter
	PriceColumn  string
	ChangeColumn string
	// MetricColumns maps a quote metric name to a column key.
	MetricColumns map[string]string
}

// PremiumSpec designates the two sources a premium column is computed
// from. Primary is the denominator.
type PremiumSpec struct {
	PrimarySource   string
	ReferenceSource string
	Column          string
}

// Reconciler merges quotes from a fixed, ordered list of source
// adapters into one canonical record per registered entity. Adapters
// are fanned out concurrently and the merge waits for all of them,
// collecting failures alongside successes instead of failing fast.
type Reconciler struct {
	table    string
	entities []models.Entity
	sources  []SourceBinding
	premium  *PremiumSpec
	logger   *applogger.Logger
	metrics  drepo.Metrics
}

// NewReconciler creates a reconciler for one table's entity registry.
func NewReconciler(table string, entities []models.Entity, sources []SourceBinding, premium *PremiumSpec, logger *applogger.Logger, metrics drepo.Metrics) *Reconciler {
	return &Reconciler{
		table:    table,
		entities: entities,
		sources:  sources,
		premium:  premium,
		logger:   logger,
		metrics:  metrics,
	}
}

// Table returns the table name this reconciler feeds.
func (r *Reconciler) Table() string { return r.table }

type fetchResult struct {
	source string
	quotes []models.SourceQuote
	err    *models.AdapterError
}

// Run executes one reconciliation cycle. It returns a full record set
// whenever at least one source produced data; only when every source
// failed does it return a *models.ReconcileError.
func (r *Reconciler) Run(ctx context.Context) ([]models.CanonicalRecord, error) {
	results := make([]fetchResult, len(r.sources))

	var wg sync.WaitGroup
	for i, src := range r.sources {
		wg.Add(1)
		go func(i int, src SourceBinding) {
			defer wg.Done()
			quotes, err := src.Adapter.Fetch(ctx)
			res := fetchResult{source: src.Adapter.Name(), quotes: quotes}
			if err != nil {
				var ae *models.AdapterError
				if !errors.As(err, &ae) {
					ae = models.NewAdapterError(src.Adapter.Name(), models.ReasonTransport, err)
				}
				res.err = ae
			}
			results[i] = res
		}(i, src)
	}
	wg.Wait()

	// Index quotes by source and entity, counting usable sources.
	usable := 0
	causes := make([]*models.AdapterError, 0, len(results))
	bySource := make(map[string]map[string]models.SourceQuote, len(results))
	for _, res := range results {
		if res.err != nil {
			causes = append(causes, res.err)
			r.metrics.RecordAdapterError(res.err.Source, res.err.Reason)
			r.logger.Warn("source fetch failed",
				applogger.String("table", r.table),
				applogger.String("source", res.err.Source),
				applogger.String("reason", res.err.Reason),
				applogger.Error(res.err),
			)
			continue
		}
		usable++
		byEntity := make(map[string]models.SourceQuote, len(res.quotes))
		for _, q := range res.quotes {
			byEntity[q.EntityID] = q
			r.metrics.RecordLastPrice(res.source, q.EntityID, q.Price)
		}
		bySource[res.source] = byEntity
	}

	if usable == 0 {
		return nil, &models.ReconcileError{Causes: causes}
	}

	records := r.merge(bySource)
	r.logger.Debug("cycle reconciled",
		applogger.String("table", r.table),
		applogger.Int("records", len(records)),
		applogger.Int("failed_sources", len(causes)),
	)
	return records, nil
}

// merge builds one record per registered entity, iterating the entity
// registry rather than the quotes so output membership stays fixed
// even under partial data.
func (r *Reconciler) merge(bySource map[string]map[string]models.SourceQuote) []models.CanonicalRecord {
	records := make([]models.CanonicalRecord, 0, len(r.entities))
	for _, ent := range r.entities {
		rec := models.CanonicalRecord{
			EntityID:    ent.ID,
			DisplayName: ent.DisplayName,
			Fields:      make(map[string]*float64),
		}

		for _, src := range r.sources {
			name := src.Adapter.Name()
			quotes, ok := bySource[name]
			if !ok {
				continue
			}
			q, ok := quotes[ent.ID]
			if !ok {
				continue
			}
			price := q.Price
			rec.Fields[src.PriceColumn] = &price
			if src.ChangeColumn != "" && q.ChangePercent != nil {
				ch := *q.ChangePercent
				rec.Fields[src.ChangeColumn] = &ch
			}
			for metric, column := range src.MetricColumns {
				if v, ok := q.Metrics[metric]; ok {
					mv := v
					rec.Fields[column] = &mv
				}
			}
			if q.AsOf.After(rec.AsOf) {
				rec.AsOf = q.AsOf
			}
		}

		if r.premium != nil {
			rec.Fields[r.premium.Column] = r.computePremium(bySource, ent.ID)
		}
		records = append(records, rec)
	}
	return records
}

// computePremium returns the percentage deviation of the reference
// price from the primary price, or nil unless both prices are present
// and the primary is finite and nonzero.
func (r *Reconciler) computePremium(bySource map[string]map[string]models.SourceQuote, entityID string) *float64 {
	primary, ok := lookup(bySource, r.premium.PrimarySource, entityID)
	if !ok {
		return nil
	}
	reference, ok := lookup(bySource, r.premium.ReferenceSource, entityID)
	if !ok {
		return nil
	}
	if primary == 0 || math.IsNaN(primary) || math.IsInf(primary, 0) {
		return nil
	}
	p := (reference - primary) / primary * 100
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return nil
	}
	return &p
}

func lookup(bySource map[string]map[string]models.SourceQuote, source, entityID string) (float64, bool) {
	quotes, ok := bySource[source]
	if !ok {
		return 0, false
	}
	q, ok := quotes[entityID]
	if !ok {
		return 0, false
	}
	return q.Price, true
}
