package finnhub

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

const sourceName = "finnhub"

// Metric names carried on quotes from this source.
const (
	MetricDividendYield = "dividend_yield"
	MetricDividendRate  = "dividend_rate"
)

// Client fetches stock quotes and dividend fundamentals from the
// Finnhub REST API, one symbol at a time (the API has no batch form).
type Client struct {
	http     *xhttp.Client
	baseURL  string
	apiKey   string
	entities []models.Entity
	limiter  *ratelimit.Limiter
}

// New creates a Finnhub source adapter.
func New(httpClient *xhttp.Client, baseURL, apiKey string, entities []models.Entity, limiter *ratelimit.Limiter) drepo.SourceAdapter {
	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		entities: entities,
		limiter:  limiter,
	}
}

func (c *Client) Name() string { return sourceName }

type quoteResponse struct {
	Current       float64  `json:"c"`
	ChangePercent *float64 `json:"dp"`
	Timestamp     int64    `json:"t"`
}

type metricResponse struct {
	Metric struct {
		DividendYieldTTM    *float64 `json:"dividendYieldTTM"`
		DividendPerShareTTM *float64 `json:"dividendPerShareTTM"`
	} `json:"metric"`
}

// Fetch pulls a quote plus dividend metrics per configured symbol.
// Symbols that fail or come back empty are omitted; the whole call
// fails only when no symbol produced a quote.
func (c *Client) Fetch(ctx context.Context) ([]models.SourceQuote, error) {
	quotes := make([]models.SourceQuote, 0, len(c.entities))
	var lastErr *models.AdapterError

	for _, e := range c.entities {
		symbol := e.Symbols[sourceName]
		if symbol == "" {
			continue
		}
		if c.limiter != nil && !c.limiter.Allow(sourceName) {
			lastErr = models.NewAdapterError(sourceName, models.ReasonRateLimited, fmt.Errorf("budget exhausted at %s", symbol))
			break
		}

		q, err := c.fetchQuote(ctx, e, symbol)
		if err != nil {
			lastErr = err
			continue
		}
		if q == nil {
			// Finnhub answers zeros for symbols it has no data for.
			continue
		}

		// Fundamentals are best effort; a quote without dividend
		// metrics is still a quote.
		if metrics, err := c.fetchMetrics(ctx, symbol); err == nil && len(metrics) > 0 {
			q.Metrics = metrics
		}
		quotes = append(quotes, *q)
	}

	if len(quotes) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, models.NewAdapterError(sourceName, models.ReasonShape, fmt.Errorf("no quotes for %d symbols", len(c.entities)))
	}
	return quotes, nil
}

func (c *Client) fetchQuote(ctx context.Context, e models.Entity, symbol string) (*models.SourceQuote, *models.AdapterError) {
	var qr quoteResponse
	if aerr := c.getJSON(ctx, "/quote", symbol, nil, &qr); aerr != nil {
		return nil, aerr
	}
	if qr.Current == 0 {
		return nil, nil
	}

	asOf := time.Now()
	if qr.Timestamp > 0 {
		asOf = time.Unix(qr.Timestamp, 0)
	}
	q := &models.SourceQuote{
		EntityID: e.ID,
		Source:   sourceName,
		Currency: "USD",
		Price:    qr.Current,
		AsOf:     asOf,
	}
	if qr.ChangePercent != nil {
		ch := *qr.ChangePercent
		q.ChangePercent = &ch
	}
	return q, nil
}

func (c *Client) fetchMetrics(ctx context.Context, symbol string) (map[string]float64, *models.AdapterError) {
	var mr metricResponse
	if aerr := c.getJSON(ctx, "/stock/metric", symbol, map[string][]string{"metric": {"all"}}, &mr); aerr != nil {
		return nil, aerr
	}
	metrics := make(map[string]float64, 2)
	if mr.Metric.DividendYieldTTM != nil {
		// Finnhub reports the TTM yield as a fraction.
		metrics[MetricDividendYield] = *mr.Metric.DividendYieldTTM * 100
	}
	if mr.Metric.DividendPerShareTTM != nil {
		metrics[MetricDividendRate] = *mr.Metric.DividendPerShareTTM
	}
	return metrics, nil
}

func (c *Client) getJSON(ctx context.Context, path, symbol string, extra map[string][]string, dest interface{}) *models.AdapterError {
	params := map[string][]string{
		"symbol": {symbol},
		"token":  {c.apiKey},
	}
	for k, v := range extra {
		params[k] = v
	}

	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: params,
	})
	if err != nil {
		return models.NewAdapterError(sourceName, models.ReasonTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.NewAdapterError(sourceName, models.ReasonStatus, fmt.Errorf("%s %s: unexpected status %d", path, symbol, resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return models.NewAdapterError(sourceName, models.ReasonDecode, err)
	}
	return nil
}
