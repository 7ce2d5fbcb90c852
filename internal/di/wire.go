//go:build wireinject
// +build wireinject

package di

import (
	"SignalBoard/pkg/config"
	"SignalBoard/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideEventPublisher,
		ProvideHTTPClient,
		ProvideFetcher,

		// Repositories and use cases
		ProvideSources,
		ProvideClassifier,
		ProvidePrefetcher,
		ProvideDashboard,

		// Sessions and transport
		ProvideViewsConfig,
		ProvideSessionManager,
		ProvideRateLimiter,
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
