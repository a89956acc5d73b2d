//go:build wireinject
// +build wireinject

package di

import (
	"github.com/beajinsu/investment/pkg/config"
	"github.com/beajinsu/investment/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient infrastructure
		ProvideLogger,
		ProvideMetrics,
		ProvideHTTPClient,
		ProvideRateLimiter,

		// Optional sinks
		ProvideKafkaProducer,
		ProvideSnapshotPublisher,
		ProvideCache,
		ProvideSnapshotStore,

		// Tables
		ProvideDashboard,

		// Handlers
		ProvideTablesHandler,
		ProvideWSHub,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
