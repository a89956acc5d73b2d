package upbit

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/beajinsu/investment/internal/domain/models"
	xhttp "github.com/beajinsu/investment/pkg/http"
)

func entities() []models.Entity {
	return []models.Entity{
		{ID: "bitcoin", DisplayName: "비트코인", Symbols: map[string]string{"upbit": "KRW-BTC"}},
		{ID: "ethereum", DisplayName: "이더리움", Symbols: map[string]string{"upbit": "KRW-ETH"}},
	}
}

func TestFetchParsesTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Path; got != "/v1/ticker" {
			t.Fatalf("path = %q", got)
		}
		markets := r.URL.Query().Get("markets")
		if !strings.Contains(markets, "KRW-BTC") || !strings.Contains(markets, "KRW-ETH") {
			t.Fatalf("markets = %q", markets)
		}
		_, _ = w.Write([]byte(`[
			{"market": "KRW-BTC", "trade_price": 50500000, "signed_change_rate": -0.012, "timestamp": 1700000000000},
			{"market": "KRW-ETH", "trade_price": 3100000, "signed_change_rate": 0.005, "timestamp": 1700000000000}
		]`))
	}))
	defer srv.Close()

	c := New(xhttp.NewClient(), srv.URL, entities(), nil)
	quotes, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(quotes))
	}

	btc := quotes[0]
	if btc.EntityID != "bitcoin" || btc.Price != 50_500_000 || btc.Currency != "KRW" {
		t.Fatalf("btc quote = %+v", btc)
	}
	// signed_change_rate is a fraction; quotes carry percent.
	if btc.ChangePercent == nil || math.Abs(*btc.ChangePercent-(-1.2)) > 1e-9 {
		t.Fatalf("btc change = %v", btc.ChangePercent)
	}
	if want := time.UnixMilli(1700000000000); !btc.AsOf.Equal(want) {
		t.Fatalf("asOf = %v, want %v", btc.AsOf, want)
	}
}

func TestFetchOmitsUnknownMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"market": "KRW-BTC", "trade_price": 50500000, "signed_change_rate": 0, "timestamp": 1700000000000},
			{"market": "KRW-DOGE", "trade_price": 300, "signed_change_rate": 0, "timestamp": 1700000000000}
		]`))
	}))
	defer srv.Close()

	c := New(xhttp.NewClient(), srv.URL, entities(), nil)
	quotes, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(quotes) != 1 || quotes[0].EntityID != "bitcoin" {
		t.Fatalf("quotes = %+v", quotes)
	}
}

func TestFetchShapeErrorWhenNothingMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"market": "KRW-DOGE", "trade_price": 300, "signed_change_rate": 0, "timestamp": 1}]`))
	}))
	defer srv.Close()

	c := New(xhttp.NewClient(), srv.URL, entities(), nil)
	_, err := c.Fetch(context.Background())
	var ae *models.AdapterError
	if !errors.As(err, &ae) || ae.Reason != models.ReasonShape {
		t.Fatalf("want shape error, got %v", err)
	}
}

func TestFetchClassifiesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(xhttp.NewClient(), srv.URL, entities(), nil)
	_, err := c.Fetch(context.Background())
	var ae *models.AdapterError
	if !errors.As(err, &ae) || ae.Reason != models.ReasonStatus || ae.Source != "upbit" {
		t.Fatalf("want upbit status error, got %v", err)
	}
}
