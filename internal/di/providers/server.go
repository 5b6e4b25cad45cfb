package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/quotevault/quotevault-server/internal/api"
	"github.com/quotevault/quotevault-server/internal/auth"
	"github.com/quotevault/quotevault-server/internal/config"
	"github.com/quotevault/quotevault-server/internal/logger"
	"github.com/quotevault/quotevault-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.api.Close()
	return err
}

// ProvideHTTPServer builds the API router and starts listening in the background.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	m := do.MustInvoke[*MetricsHandle](i)

	services := &api.Services{
		Quote:      do.MustInvoke[*service.QuoteService](i),
		Signature:  do.MustInvoke[*service.SignatureService](i),
		Expiration: do.MustInvoke[*service.ExpirationService](i),
		Vote:       do.MustInvoke[*service.VoteService](i),
		Flag:       do.MustInvoke[*service.FlagService](i),
		Counter:    do.MustInvoke[*service.CounterService](i),
		User:       do.MustInvoke[*service.UserService](i),
	}

	handler := api.NewServer(storeHandle.Store, services, tokens, sseHandle.Manager, api.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.RateLimit,
		Metrics:     m.Handler(),
		Search:      indexHandle.SearchIndex,
	}, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, api: handler}, nil
}
