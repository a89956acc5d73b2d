package coingecko

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

const sourceName = "coingecko"

// Client fetches global coin prices from the CoinGecko simple/price
// endpoint and normalizes them into source quotes.
type Client struct {
	http     *xhttp.Client
	baseURL  string
	currency string
	entities []models.Entity
	limiter  *ratelimit.Limiter
}

// New creates a CoinGecko source adapter.
func New(httpClient *xhttp.Client, baseURL, currency string, entities []models.Entity, limiter *ratelimit.Limiter) drepo.SourceAdapter {
	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(baseURL, "/"),
		currency: strings.ToLower(currency),
		entities: entities,
		limiter:  limiter,
	}
}

func (c *Client) Name() string { return sourceName }

// Fetch pulls one batch quote for every configured coin. Coins the
// payload has no entry for are omitted.
func (c *Client) Fetch(ctx context.Context) ([]models.SourceQuote, error) {
	if c.limiter != nil && !c.limiter.Allow(sourceName) {
		return nil, models.NewAdapterError(sourceName, models.ReasonRateLimited, fmt.Errorf("budget exhausted"))
	}

	ids := make([]string, 0, len(c.entities))
	for _, e := range c.entities {
		if id := e.Symbols[sourceName]; id != "" {
			ids = append(ids, id)
		}
	}

	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/simple/price",
		QueryParams: map[string][]string{
			"ids":                 {strings.Join(ids, ",")},
			"vs_currencies":       {c.currency},
			"include_24hr_change": {"true"},
		},
	})
	if err != nil {
		return nil, models.NewAdapterError(sourceName, models.ReasonTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, models.NewAdapterError(sourceName, models.ReasonStatus, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, models.NewAdapterError(sourceName, models.ReasonDecode, err)
	}

	now := time.Now()
	quotes := make([]models.SourceQuote, 0, len(c.entities))
	for _, e := range c.entities {
		entry, ok := payload[e.Symbols[sourceName]]
		if !ok {
			continue
		}
		price, ok := entry[c.currency]
		if !ok {
			continue
		}
		q := models.SourceQuote{
			EntityID: e.ID,
			Source:   sourceName,
			Currency: strings.ToUpper(c.currency),
			Price:    price,
			AsOf:     now,
		}
		if ch, ok := entry[c.currency+"_24h_change"]; ok {
			chv := ch
			q.ChangePercent = &chv
		}
		quotes = append(quotes, q)
	}

	if len(quotes) == 0 && len(payload) > 0 {
		return nil, models.NewAdapterError(sourceName, models.ReasonShape, fmt.Errorf("payload missing %q prices", c.currency))
	}
	return quotes, nil
}
