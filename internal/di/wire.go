//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FMPull/pkg/config"
	"FMPull/pkg/server"
)

var fetchSet = wire.NewSet(
	// Observability
	ProvideLogger,
	ProvideMetrics,

	// Infrastructure clients
	ProvideRedisClient,
	ProvideCacheStore,
	ProvideHTTPClient,

	// Upstream access
	ProvideTransport,
	ProvideSourceFetcher,
	ProvideRetrier,
	ProvideLimiter,
	ProvideURLBuilder,

	// Execution
	ProvideQueueConfig,
	ProvideFetchJob,
	ProvideStrategy,

	// Repositories
	ProvideStartDateStore,
	ProvidePublisher,

	// Use cases
	ProvideCatalogue,
	ProvideOptions,
	ProvideFetcher,
	ProvideCollector,
	ProvidePipeline,
)

// InitializeRuntime wires the one-shot fetch pipeline.
func InitializeRuntime(cfg *config.Config) (*Runtime, func(), error) {
	wire.Build(
		fetchSet,
		ProvideSymbolSource,
		wire.Struct(new(Runtime), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker wires the long-lived worker process.
func InitializeWorker(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		fetchSet,
		ProvideQueueConsumer,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
