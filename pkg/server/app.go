package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/beajinsu/investment/internal/domain/repository"
	"github.com/beajinsu/investment/internal/usecase"
	"github.com/beajinsu/investment/pkg/cache"
	"github.com/beajinsu/investment/pkg/config"
	xhttp "github.com/beajinsu/investment/pkg/http"
	applogger "github.com/beajinsu/investment/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	logger    *applogger.Logger
	dashboard *usecase.Dashboard
	handlers  []xhttp.Handler
	publisher repository.SnapshotPublisher
	cache     cache.Service

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	dashboard *usecase.Dashboard,
	handlers []xhttp.Handler,
	publisher repository.SnapshotPublisher,
	cacheService cache.Service,
) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		dashboard: dashboard,
		handlers:  handlers,
		publisher: publisher,
		cache:     cacheService,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handlers,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(a.cfg.Metrics.Path),
	)

	// Start the refreshers; each runs its first cycle immediately.
	a.dashboard.Start(ctx)
	a.logger.Info("dashboard started", applogger.Strings("tables", a.dashboard.Names()))

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}
	a.logger.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	// Stop refreshers first so no cycle result lands mid-shutdown.
	a.dashboard.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
