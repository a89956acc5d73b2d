package models

import "time"

// Entity is one tracked instrument (coin or stock). Symbols maps a
// source name to the identifier that source uses for this entity,
// e.g. {coingecko: bitcoin, upbit: KRW-BTC}.
type Entity struct {
	ID          string            `yaml:"id" json:"id"`
	DisplayName string            `yaml:"name" json:"displayName"`
	Symbols     map[string]string `yaml:"symbols" json:"-"`
}

// SourceQuote is the normalized output of one adapter for one entity.
// It lives for a single reconciliation cycle; the reconciler consumes
// and discards it.
type SourceQuote struct {
	EntityID      string
	Source        string
	Currency      string
	Price         float64
	ChangePercent *float64
	// Metrics carries supplemental per-entity numbers some sources
	// expose alongside the price (dividend yield, dividend rate).
	Metrics map[string]float64
	AsOf    time.Time
}

// CanonicalRecord is the merged per-entity snapshot for one cycle.
// Fields is keyed by column key; a nil value means the backing source
// had no data for that entity this cycle. Records are built fresh
// every cycle and never mutated afterwards.
type CanonicalRecord struct {
	EntityID    string              `json:"id"`
	DisplayName string              `json:"displayName"`
	Fields      map[string]*float64 `json:"fields"`
	AsOf        time.Time           `json:"asOf"`
}

// Field returns the value for a column key, or nil when absent.
func (r CanonicalRecord) Field(key string) *float64 {
	return r.Fields[key]
}

// Clone returns a deep copy so callers can hand records across
// goroutine boundaries without sharing the field map.
func (r CanonicalRecord) Clone() CanonicalRecord {
	fields := make(map[string]*float64, len(r.Fields))
	for k, v := range r.Fields {
		if v == nil {
			fields[k] = nil
			continue
		}
		f := *v
		fields[k] = &f
	}
	return CanonicalRecord{
		EntityID:    r.EntityID,
		DisplayName: r.DisplayName,
		Fields:      fields,
		AsOf:        r.AsOf,
	}
}
