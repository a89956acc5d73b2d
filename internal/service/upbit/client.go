package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/beajinsu/investment/internal/domain/models"
	drepo "github.com/beajinsu/investment/internal/domain/repository"
	"github.com/beajinsu/investment/internal/service/ratelimit"
	xhttp "github.com/beajinsu/investment/pkg/http"
)

const sourceName = "upbit"

// Client fetches KRW market tickers from the Upbit public API.
type Client struct {
	http     *xhttp.Client
	baseURL  string
	entities []models.Entity
	limiter  *ratelimit.Limiter
}

// New creates an Upbit source adapter.
func New(httpClient *xhttp.Client, baseURL string, entities []models.Entity, limiter *ratelimit.Limiter) drepo.SourceAdapter {
	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(baseURL, "/"),
		entities: entities,
		limiter:  limiter,
	}
}

func (c *Client) Name() string { return sourceName }

type tickerEntry struct {
	Market           string  `json:"market"`
	TradePrice       float64 `json:"trade_price"`
	SignedChangeRate float64 `json:"signed_change_rate"`
	Timestamp        int64   `json:"timestamp"` // ms
}

// Fetch pulls the batch ticker for every configured market. Markets
// missing from the response are omitted.
func (c *Client) Fetch(ctx context.Context) ([]models.SourceQuote, error) {
	if c.limiter != nil && !c.limiter.Allow(sourceName) {
		return nil, models.NewAdapterError(sourceName, models.ReasonRateLimited, fmt.Errorf("budget exhausted"))
	}

	markets := make([]string, 0, len(c.entities))
	byMarket := make(map[string]models.Entity, len(c.entities))
	for _, e := range c.entities {
		m := e.Symbols[sourceName]
		if m == "" {
			continue
		}
		markets = append(markets, m)
		byMarket[m] = e
	}

	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/v1/ticker",
		QueryParams: map[string][]string{
			"markets": {strings.Join(markets, ",")},
		},
	})
	if err != nil {
		return nil, models.NewAdapterError(sourceName, models.ReasonTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, models.NewAdapterError(sourceName, models.ReasonStatus, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var entries []tickerEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, models.NewAdapterError(sourceName, models.ReasonDecode, err)
	}

	quotes := make([]models.SourceQuote, 0, len(entries))
	for _, t := range entries {
		e, ok := byMarket[t.Market]
		if !ok || t.Market == "" {
			continue
		}
		change := t.SignedChangeRate * 100
		quotes = append(quotes, models.SourceQuote{
			EntityID:      e.ID,
			Source:        sourceName,
			Currency:      "KRW",
			Price:         t.TradePrice,
			ChangePercent: &change,
			AsOf:          time.UnixMilli(t.Timestamp),
		})
	}

	if len(quotes) == 0 && len(entries) > 0 {
		return nil, models.NewAdapterError(sourceName, models.ReasonShape, fmt.Errorf("no configured market in payload"))
	}
	return quotes, nil
}
