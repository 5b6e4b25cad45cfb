package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/quotevault/quotevault-server/internal/config"
	"github.com/quotevault/quotevault-server/internal/domain"
	"github.com/quotevault/quotevault-server/internal/logger"
	"github.com/quotevault/quotevault-server/internal/search"
	"github.com/quotevault/quotevault-server/internal/service"
)

// SearchIndexHandle wraps the search index with shutdown capability.
type SearchIndexHandle struct {
	*search.SearchIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the Bleve search index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewSearchIndex(search.Options{
		DataPath: cfg.Data.SearchIndexPath(),
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount)

	return &SearchIndexHandle{SearchIndex: index}, nil
}

// TriggerSearchReindexIfNeeded rebuilds an empty index in the background
// when the store already holds quotes.
func TriggerSearchReindexIfNeeded(i do.Injector) {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	quotes := do.MustInvoke[*service.QuoteService](i)
	log := do.MustInvoke[*logger.Logger](i)

	docCount, _ := indexHandle.DocumentCount()
	if docCount > 0 {
		return
	}

	ctx := context.Background()
	existing, err := storeHandle.ListQuotes(ctx, domain.QuoteQuery{
		Viewer: domain.Caller{Admin: true},
		Filter: domain.FilterAll,
		Limit:  1,
	})
	if err != nil || len(existing) == 0 {
		return
	}

	log.Info("Search index is empty but quotes exist, triggering initial reindex")

	go func() {
		indexed, err := quotes.Reindex(context.Background())
		if err != nil {
			log.WithError(err).Error("Initial search reindex failed")
			return
		}
		log.Info("Initial search reindex completed", "documents", indexed)
	}()
}
