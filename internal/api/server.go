// Package api provides the HTTP API server and handlers for the QuoteVault server.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/quotevault/quotevault-server/internal/auth"
	"github.com/quotevault/quotevault-server/internal/config"
	"github.com/quotevault/quotevault-server/internal/search"
	"github.com/quotevault/quotevault-server/internal/sse"
	"github.com/quotevault/quotevault-server/internal/store"
	"github.com/quotevault/quotevault-server/internal/validation"
)

// APIVersion is reported in the OpenAPI document.
const APIVersion = "1.0.0"

// Options carries optional server collaborators.
type Options struct {
	CORSOrigins []string
	RateLimit   config.RateLimitConfig
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Search is probed by the health check when set.
	Search *search.SearchIndex
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      store.Store
	services   *Services
	tokens     *auth.TokenService
	sseManager *sse.Manager
	sseHandler *sse.Handler
	search     *search.SearchIndex
	validator  *validation.Validator
	limiter    *RateLimiter
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st store.Store, services *Services, tokens *auth.TokenService, sseManager *sse.Manager, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		store:      st,
		services:   services,
		tokens:     tokens,
		sseManager: sseManager,
		search:     opts.Search,
		validator:  validation.New(),
		router:     chi.NewRouter(),
		logger:     logger,
	}
	if opts.RateLimit.RequestsPerMinute > 0 {
		s.limiter = NewRateLimiter(opts.RateLimit.RequestsPerMinute, opts.RateLimit.Burst)
	}
	if sseManager != nil {
		s.sseHandler = sse.NewHandler(sseManager, s.identifyStream, logger)
	}

	s.setupMiddleware(opts.CORSOrigins)

	humaConfig := huma.DefaultConfig("QuoteVault API", APIVersion)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler(logger)

	s.registerRoutes(opts.Metrics)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// registerRoutes wires every operation.
func (s *Server) registerRoutes(metrics http.Handler) {
	s.registerHealthRoutes()
	s.registerQuoteRoutes()
	s.registerSignatureRoutes()
	s.registerVoteRoutes()
	s.registerFlagRoutes()
	s.registerCounterRoutes()
	s.registerUserRoutes()
	s.registerAdminRoutes()

	if s.sseHandler != nil {
		s.router.Get("/api/v1/events", s.sseHandler.ServeHTTP)
	}
	if metrics != nil {
		s.router.Handle("/metrics", metrics)
	}
}
