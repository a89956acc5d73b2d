package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/beajinsu/investment/internal/domain/models"
	applogger "github.com/beajinsu/investment/pkg/logger"
)

type stubAdapter struct {
	name   string
	quotes []models.SourceQuote
	err    error
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Fetch(context.Context) ([]models.SourceQuote, error) {
	return s.quotes, s.err
}

type recordingMetrics struct {
	mu      sync.Mutex
	cycles  map[string]int // table+result
	skipped int
	errors  map[string]int // source+reason
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{cycles: make(map[string]int), errors: make(map[string]int)}
}

func (m *recordingMetrics) RecordCycle(table, result string) {
	m.mu.Lock()
	m.cycles[table+"/"+result]++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordCycleSkipped(string) {
	m.mu.Lock()
	m.skipped++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordCycleDuration(string, float64) {}

func (m *recordingMetrics) RecordAdapterError(source, reason string) {
	m.mu.Lock()
	m.errors[source+"/"+reason]++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordLastPrice(string, string, float64) {}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func quote(source, entity string, price float64) models.SourceQuote {
	return models.SourceQuote{
		EntityID: entity,
		Source:   source,
		Price:    price,
		AsOf:     time.Now(),
	}
}

func cryptoEntities() []models.Entity {
	return []models.Entity{
		{ID: "bitcoin", DisplayName: "비트코인", Symbols: map[string]string{"coingecko": "bitcoin", "upbit": "KRW-BTC"}},
		{ID: "ethereum", DisplayName: "이더리움", Symbols: map[string]string{"coingecko": "ethereum", "upbit": "KRW-ETH"}},
	}
}

func premiumSpec() *PremiumSpec {
	return &PremiumSpec{PrimarySource: "coingecko", ReferenceSource: "upbit", Column: "premium"}
}

func findRecord(t *testing.T, records []models.CanonicalRecord, id string) models.CanonicalRecord {
	t.Helper()
	for _, r := range records {
		if r.EntityID == id {
			return r
		}
	}
	t.Fatalf("entity %q missing from %d records", id, len(records))
	return models.CanonicalRecord{}
}

func TestPremiumComputation(t *testing.T) {
	r := NewReconciler("crypto", cryptoEntities(),
		[]SourceBinding{
			{Adapter: &stubAdapter{name: "coingecko", quotes: []models.SourceQuote{quote("coingecko", "bitcoin", 50_000_000)}}, PriceColumn: "global_price"},
			{Adapter: &stubAdapter{name: "upbit", quotes: []models.SourceQuote{quote("upbit", "bitcoin", 50_500_000)}}, PriceColumn: "upbit_price"},
		},
		premiumSpec(), testLogger(t), newRecordingMetrics())

	records, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	btc := findRecord(t, records, "bitcoin")
	p := btc.Field("premium")
	if p == nil {
		t.Fatal("premium missing")
	}
	if math.Abs(*p-1.0) > 1e-9 {
		t.Fatalf("premium = %v, want 1.00", *p)
	}
}

func TestMissingSourceYieldsNilPremium(t *testing.T) {
	r := NewReconciler("crypto", cryptoEntities(),
		[]SourceBinding{
			{Adapter: &stubAdapter{name: "coingecko", quotes: []models.SourceQuote{
				quote("coingecko", "bitcoin", 50_000_000),
				quote("coingecko", "ethereum", 3_000_000),
			}}, PriceColumn: "global_price"},
			{Adapter: &stubAdapter{name: "upbit", err: models.NewAdapterError("upbit", models.ReasonStatus, fmt.Errorf("status 500"))}, PriceColumn: "upbit_price"},
		},
		premiumSpec(), testLogger(t), newRecordingMetrics())

	records, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("one usable source must not fail the cycle: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("membership must follow the registry: got %d records", len(records))
	}

	btc := findRecord(t, records, "bitcoin")
	if btc.Field("premium") != nil {
		t.Fatal("premium must be nil when reference source is down")
	}
	if btc.Field("upbit_price") != nil {
		t.Fatal("upbit_price must be nil when upbit is down")
	}
	if v := btc.Field("global_price"); v == nil || *v != 50_000_000 {
		t.Fatalf("global_price = %v", v)
	}
}

func TestEntityMissingFromPayloadStillListed(t *testing.T) {
	r := NewReconciler("crypto", cryptoEntities(),
		[]SourceBinding{
			{Adapter: &stubAdapter{name: "coingecko", quotes: []models.SourceQuote{quote("coingecko", "bitcoin", 50_000_000)}}, PriceColumn: "global_price"},
		},
		nil, testLogger(t), newRecordingMetrics())

	records, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	eth := findRecord(t, records, "ethereum")
	if eth.Field("global_price") != nil {
		t.Fatal("ethereum had no quote, field must be nil")
	}
	if eth.DisplayName != "이더리움" {
		t.Fatalf("display name = %q", eth.DisplayName)
	}
}

func TestAllSourcesFailReturnsReconcileError(t *testing.T) {
	m := newRecordingMetrics()
	r := NewReconciler("crypto", cryptoEntities(),
		[]SourceBinding{
			{Adapter: &stubAdapter{name: "coingecko", err: models.NewAdapterError("coingecko", models.ReasonTransport, fmt.Errorf("dial timeout"))}, PriceColumn: "global_price"},
			{Adapter: &stubAdapter{name: "upbit", err: models.NewAdapterError("upbit", models.ReasonDecode, fmt.Errorf("bad json"))}, PriceColumn: "upbit_price"},
		},
		premiumSpec(), testLogger(t), m)

	records, err := r.Run(context.Background())
	if records != nil {
		t.Fatalf("no records expected, got %d", len(records))
	}
	var re *models.ReconcileError
	if !errors.As(err, &re) {
		t.Fatalf("want *models.ReconcileError, got %T", err)
	}
	if len(re.Causes) != 2 {
		t.Fatalf("got %d causes, want 2", len(re.Causes))
	}
	if m.errors["coingecko/transport"] != 1 || m.errors["upbit/decode"] != 1 {
		t.Fatalf("adapter error metrics: %v", m.errors)
	}
}

func TestZeroPrimaryPriceYieldsNilPremium(t *testing.T) {
	r := NewReconciler("crypto", cryptoEntities(),
		[]SourceBinding{
			{Adapter: &stubAdapter{name: "coingecko", quotes: []models.SourceQuote{quote("coingecko", "bitcoin", 0)}}, PriceColumn: "global_price"},
			{Adapter: &stubAdapter{name: "upbit", quotes: []models.SourceQuote{quote("upbit", "bitcoin", 50_500_000)}}, PriceColumn: "upbit_price"},
		},
		premiumSpec(), testLogger(t), newRecordingMetrics())

	records, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if p := findRecord(t, records, "bitcoin").Field("premium"); p != nil {
		t.Fatalf("premium = %v, want nil on zero primary", *p)
	}
}

func TestPlainErrorIsWrappedAsTransport(t *testing.T) {
	r := NewReconciler("crypto", cryptoEntities(),
		[]SourceBinding{
			{Adapter: &stubAdapter{name: "coingecko", err: fmt.Errorf("connection reset")}, PriceColumn: "global_price"},
		},
		nil, testLogger(t), newRecordingMetrics())

	_, err := r.Run(context.Background())
	var re *models.ReconcileError
	if !errors.As(err, &re) {
		t.Fatalf("want *models.ReconcileError, got %T", err)
	}
	if re.Causes[0].Reason != models.ReasonTransport {
		t.Fatalf("reason = %q, want transport", re.Causes[0].Reason)
	}
	if re.Causes[0].Source != "coingecko" {
		t.Fatalf("source = %q", re.Causes[0].Source)
	}
}

func TestChangeAndMetricColumns(t *testing.T) {
	change := 2.5
	q := quote("finnhub", "schd", 27.5)
	q.ChangePercent = &change
	q.Metrics = map[string]float64{"dividend_yield": 3.41, "dividend_rate": 0.94}

	r := NewReconciler("dividends",
		[]models.Entity{{ID: "schd", DisplayName: "SCHD", Symbols: map[string]string{"finnhub": "SCHD"}}},
		[]SourceBinding{{
			Adapter:      &stubAdapter{name: "finnhub", quotes: []models.SourceQuote{q}},
			PriceColumn:  "price",
			ChangeColumn: "change_percent",
			MetricColumns: map[string]string{
				"dividend_yield": "dividend_yield",
				"dividend_rate":  "dividend_rate",
			},
		}},
		nil, testLogger(t), newRecordingMetrics())

	records, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rec := findRecord(t, records, "schd")
	for key, want := range map[string]float64{
		"price":          27.5,
		"change_percent": 2.5,
		"dividend_yield": 3.41,
		"dividend_rate":  0.94,
	} {
		got := rec.Field(key)
		if got == nil || *got != want {
			t.Fatalf("%s = %v, want %v", key, got, want)
		}
	}
}
