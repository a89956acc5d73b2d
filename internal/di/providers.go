package di

import (
	"fmt"

	"golang.org/x/text/language"

	"github.com/beajinsu/investment/internal/domain/models"
	drepo "github.com/beajinsu/investment/internal/domain/repository"
	"github.com/beajinsu/investment/internal/handler/api"
	"github.com/beajinsu/investment/internal/handler/ws"
	internalrepo "github.com/beajinsu/investment/internal/repository"
	"github.com/beajinsu/investment/internal/service/coingecko"
	"github.com/beajinsu/investment/internal/service/finnhub"
	"github.com/beajinsu/investment/internal/service/ratelimit"
	"github.com/beajinsu/investment/internal/service/upbit"
	"github.com/beajinsu/investment/internal/usecase"
	"github.com/beajinsu/investment/internal/viewmodel"
	"github.com/beajinsu/investment/pkg/cache"
	"github.com/beajinsu/investment/pkg/config"
	xhttp "github.com/beajinsu/investment/pkg/http"
	pkgkafka "github.com/beajinsu/investment/pkg/kafka"
	applogger "github.com/beajinsu/investment/pkg/logger"
	"github.com/beajinsu/investment/pkg/metrics"
	"github.com/beajinsu/investment/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "stdout",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideHTTPClient creates the shared outbound HTTP client.
func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(xhttp.WithTimeout(cfg.Refresh.Timeout))
}

// ProvideRateLimiter creates the per-source rate limiter. Sources
// without a configured budget stay unlimited.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	l := ratelimit.New()
	for name, src := range map[string]config.SourceConfig{
		"coingecko": cfg.CoinGecko,
		"upbit":     cfg.Upbit,
		"finnhub":   cfg.Finnhub.SourceConfig,
	} {
		if src.RateLimit.Capacity > 0 {
			l.Configure(name, src.RateLimit.Capacity, src.RateLimit.RefillPerSec)
		}
	}
	return l
}

// ProvideKafkaProducer creates a Kafka producer when the publisher is
// enabled; otherwise returns nil and the publisher stays off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Publisher.Type != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSnapshotPublisher creates the Kafka snapshot publisher.
func ProvideSnapshotPublisher(producer *pkgkafka.Producer, cfg *config.Config) drepo.SnapshotPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSnapshotPublisher(producer, cfg.Publisher.Topic)
}

// ProvideCache creates the snapshot cache. Redis layered with an
// in-process front when reachable, in-memory otherwise.
func ProvideCache(cfg *config.Config, logger *applogger.Logger) cache.Service {
	if !cfg.Cache.Enabled {
		return nil
	}
	redisCache, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Cache.Redis.Host),
		cache.WithRedisPort(cfg.Cache.Redis.Port),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		logger.Warn("redis unavailable, falling back to memory cache", applogger.Error(err))
		return cache.NewMemoryCache()
	}
	return cache.NewLayeredCache(redisCache)
}

// ProvideSnapshotStore creates the warm-start snapshot store.
func ProvideSnapshotStore(c cache.Service, cfg *config.Config) drepo.SnapshotStore {
	if c == nil {
		return nil
	}
	return internalrepo.NewCacheSnapshotStore(c, cfg.Cache.TTL)
}

func toEntities(in []config.Entity) []models.Entity {
	out := make([]models.Entity, len(in))
	for i, e := range in {
		out[i] = models.Entity{ID: e.ID, DisplayName: e.Name, Symbols: e.Symbols}
	}
	return out
}

func localeTag(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.Korean
	}
	return tag
}

// ProvideDashboard assembles both tables: view-models, reconcilers
// and refreshers.
func ProvideDashboard(
	cfg *config.Config,
	logger *applogger.Logger,
	m drepo.Metrics,
	httpClient *xhttp.Client,
	limiter *ratelimit.Limiter,
	publisher drepo.SnapshotPublisher,
	store drepo.SnapshotStore,
) *usecase.Dashboard {
	locale := localeTag(cfg.Locale)

	refresherOpts := func() []usecase.RefresherOption {
		var opts []usecase.RefresherOption
		if publisher != nil {
			opts = append(opts, usecase.WithPublisher(publisher))
		}
		if store != nil {
			opts = append(opts, usecase.WithSnapshotStore(store))
		}
		return opts
	}

	// Crypto: CoinGecko global price against the Upbit KRW ticker,
	// premium derived from the two.
	cryptoEntities := toEntities(cfg.Tables.Crypto.Entities)
	cryptoVM := viewmodel.NewTable([]viewmodel.Column{
		{Key: "name", Title: "Name", Kind: viewmodel.KindText, InitialDir: viewmodel.Asc},
		{Key: "global_price", Title: "Global Price (KRW)", Kind: viewmodel.KindNumber, InitialDir: viewmodel.Desc},
		{Key: "upbit_price", Title: "Upbit Price (KRW)", Kind: viewmodel.KindNumber, InitialDir: viewmodel.Desc},
		{Key: "premium", Title: "Premium (%)", Kind: viewmodel.KindNumber, InitialDir: viewmodel.Desc},
		{Key: "change_24h", Title: "24h Change (%)", Kind: viewmodel.KindNumber, InitialDir: viewmodel.Desc},
	}, viewmodel.WithLocale(locale))

	cryptoCycle := usecase.NewReconciler("crypto", cryptoEntities,
		[]usecase.SourceBinding{
			{
				Adapter:      coingecko.New(httpClient, cfg.CoinGecko.BaseURL, "krw", cryptoEntities, limiter),
				PriceColumn:  "global_price",
				ChangeColumn: "change_24h",
			},
			{
				Adapter:     upbit.New(httpClient, cfg.Upbit.BaseURL, cryptoEntities, limiter),
				PriceColumn: "upbit_price",
			},
		},
		&usecase.PremiumSpec{
			PrimarySource:   "coingecko",
			ReferenceSource: "upbit",
			Column:          "premium",
		},
		logger, m)

	cryptoRefresher := usecase.NewRefresher(cryptoCycle, cryptoVM,
		cfg.Tables.Crypto.Interval, cfg.Refresh.Timeout, m, logger, refresherOpts()...)

	// Dividends: Finnhub quotes plus dividend metrics, yield-first.
	dividendEntities := toEntities(cfg.Tables.Dividends.Entities)
	dividendVM := viewmodel.NewTable([]viewmodel.Column{
		{Key: "name", Title: "Name", Kind: viewmodel.KindText, InitialDir: viewmodel.Asc},
		{Key: "price", Title: "Price", Kind: viewmodel.KindNumber, InitialDir: viewmodel.Desc},
		{Key: "dividend_yield", Title: "Dividend Yield (%)", Kind: viewmodel.KindNumber, InitialDir: viewmodel.Desc},
		{Key: "dividend_rate", Title: "Dividend / Share", Kind: viewmodel.KindNumber, InitialDir: viewmodel.Desc},
		{Key: "change_percent", Title: "Change (%)", Kind: viewmodel.KindNumber, InitialDir: viewmodel.Desc},
	}, viewmodel.WithLocale(locale), viewmodel.WithDefaultSort("dividend_yield", viewmodel.Desc))

	dividendCycle := usecase.NewReconciler("dividends", dividendEntities,
		[]usecase.SourceBinding{
			{
				Adapter:      finnhub.New(httpClient, cfg.Finnhub.BaseURL, cfg.Finnhub.APIKey, dividendEntities, limiter),
				PriceColumn:  "price",
				ChangeColumn: "change_percent",
				MetricColumns: map[string]string{
					finnhub.MetricDividendYield: "dividend_yield",
					finnhub.MetricDividendRate:  "dividend_rate",
				},
			},
		},
		nil, logger, m)

	dividendRefresher := usecase.NewRefresher(dividendCycle, dividendVM,
		cfg.Tables.Dividends.Interval, cfg.Refresh.Timeout, m, logger, refresherOpts()...)

	return usecase.NewDashboard(
		&usecase.TableEntry{Name: "crypto", VM: cryptoVM, Refresher: cryptoRefresher},
		&usecase.TableEntry{Name: "dividends", VM: dividendVM, Refresher: dividendRefresher},
	)
}

// ProvideTablesHandler creates the REST handler.
func ProvideTablesHandler(logger *applogger.Logger, dashboard *usecase.Dashboard) *api.TablesEchoHandler {
	return api.NewTablesEchoHandler(logger, dashboard)
}

// ProvideWSHub creates the WebSocket push hub.
func ProvideWSHub(logger *applogger.Logger, dashboard *usecase.Dashboard) *ws.Hub {
	return ws.NewHub(logger, dashboard)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	logger *applogger.Logger,
	dashboard *usecase.Dashboard,
	tables *api.TablesEchoHandler,
	hub *ws.Hub,
	publisher drepo.SnapshotPublisher,
	cacheService cache.Service,
) *server.App {
	return server.New(cfg, logger, dashboard, []xhttp.Handler{tables, hub}, publisher, cacheService)
}
