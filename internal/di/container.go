// Package di provides dependency injection configuration for the QuoteVault server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/quotevault/quotevault-server/internal/auth"
	"github.com/quotevault/quotevault-server/internal/config"
	"github.com/quotevault/quotevault-server/internal/di/providers"
	"github.com/quotevault/quotevault-server/internal/logger"
	"github.com/quotevault/quotevault-server/internal/media/images"
	"github.com/quotevault/quotevault-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideMetrics)

	// Persistence
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideCounterCache)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Signature images
	do.Provide(injector, providers.ProvideSignatureStorage)
	do.Provide(injector, providers.ProvideImageProcessor)

	// Auth
	do.Provide(injector, providers.ProvideTokenService)

	// Business services
	do.Provide(injector, providers.ProvideCounterService)
	do.Provide(injector, providers.ProvideUserService)
	do.Provide(injector, providers.ProvideQuoteService)
	do.Provide(injector, providers.ProvideSignatureService)
	do.Provide(injector, providers.ProvideExpirationService)
	do.Provide(injector, providers.ProvideVoteService)
	do.Provide(injector, providers.ProvideFlagService)

	// Workers
	do.Provide(injector, providers.ProvideExpirationJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and starts the background workers and
// HTTP listener.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.MetricsHandle](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.CacheHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*images.Storage](injector)
	_ = do.MustInvoke[*images.Processor](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)

	// Business services
	_ = do.MustInvoke[*service.CounterService](injector)
	_ = do.MustInvoke[*service.UserService](injector)
	_ = do.MustInvoke[*service.QuoteService](injector)
	_ = do.MustInvoke[*service.SignatureService](injector)
	_ = do.MustInvoke[*service.ExpirationService](injector)
	_ = do.MustInvoke[*service.VoteService](injector)
	_ = do.MustInvoke[*service.FlagService](injector)

	// Workers
	_ = do.MustInvoke[*providers.ExpirationJob](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}
