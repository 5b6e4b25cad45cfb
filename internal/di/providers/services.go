package providers

import (
	"github.com/samber/do/v2"

	"github.com/quotevault/quotevault-server/internal/config"
	"github.com/quotevault/quotevault-server/internal/logger"
	"github.com/quotevault/quotevault-server/internal/media/images"
	"github.com/quotevault/quotevault-server/internal/service"
)

// ProvideCounterService provides the cached counter projection.
func ProvideCounterService(i do.Injector) (*service.CounterService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	cacheHandle := do.MustInvoke[*CacheHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*MetricsHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCounterService(storeHandle.Store, cacheHandle.Cache, sseHandle.Manager, m.Metrics, log.Logger), nil
}

// ProvideQuoteService provides the quote lifecycle service and registers it
// as the SSE access checker for quote-scoped events.
func ProvideQuoteService(i do.Injector) (*service.QuoteService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	storage := do.MustInvoke[*images.Storage](i)
	counters := do.MustInvoke[*service.CounterService](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*MetricsHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	svc := service.NewQuoteService(
		storeHandle.Store,
		indexHandle.SearchIndex,
		storage,
		counters,
		sseHandle.Manager,
		m.Metrics,
		cfg.Signatures,
		log.Logger,
	)

	sseHandle.SetQuoteAccessChecker(svc.CanRead)

	return svc, nil
}

// ProvideSignatureService provides the signature ledger service.
func ProvideSignatureService(i do.Injector) (*service.SignatureService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	storage := do.MustInvoke[*images.Storage](i)
	processor := do.MustInvoke[*images.Processor](i)
	counters := do.MustInvoke[*service.CounterService](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*MetricsHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSignatureService(storeHandle.Store, storage, processor, counters, sseHandle.Manager, m.Metrics, log.Logger), nil
}

// ProvideExpirationService provides the expiration sweep.
func ProvideExpirationService(i do.Injector) (*service.ExpirationService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	counters := do.MustInvoke[*service.CounterService](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*MetricsHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewExpirationService(storeHandle.Store, counters, sseHandle.Manager, m.Metrics, cfg.Signatures, log.Logger), nil
}

// ProvideVoteService provides the rarity vote aggregator.
func ProvideVoteService(i do.Injector) (*service.VoteService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	counters := do.MustInvoke[*service.CounterService](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*MetricsHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewVoteService(storeHandle.Store, counters, sseHandle.Manager, m.Metrics, log.Logger), nil
}

// ProvideFlagService provides the flag registry.
func ProvideFlagService(i do.Injector) (*service.FlagService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	counters := do.MustInvoke[*service.CounterService](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*MetricsHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewFlagService(storeHandle.Store, counters, sseHandle.Manager, m.Metrics, log.Logger), nil
}

// ProvideUserService provides the participant registry.
func ProvideUserService(i do.Injector) (*service.UserService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	counters := do.MustInvoke[*service.CounterService](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewUserService(storeHandle.Store, counters, sseHandle.Manager, log.Logger), nil
}
