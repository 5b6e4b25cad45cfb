package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/quotevault/quotevault-server/internal/cache"
	"github.com/quotevault/quotevault-server/internal/domain"
	domainerrors "github.com/quotevault/quotevault-server/internal/errors"
	"github.com/quotevault/quotevault-server/internal/metrics"
	"github.com/quotevault/quotevault-server/internal/sse"
	"github.com/quotevault/quotevault-server/internal/store"
)

// counterGeneration fences cache writes against concurrent invalidation.
// Readers fill the cache under the read lock only if no invalidation ran
// since they started counting; Invalidate bumps the generation and drops the
// cached values under the write lock.
type counterGeneration struct {
	mu  sync.RWMutex
	gen uint64
}

// CounterService projects the attention counters for a caller. Values are
// recomputed from the store on a miss and cached until the next mutation in
// their category.
type CounterService struct {
	store   store.Store
	cache   *cache.Cache
	events  store.EventEmitter
	metrics *metrics.Metrics
	logger  *slog.Logger
	gens    map[domain.CounterCategory]*counterGeneration
}

// NewCounterService creates a counter service. A nil cache disables caching.
func NewCounterService(st store.Store, c *cache.Cache, events store.EventEmitter, m *metrics.Metrics, logger *slog.Logger) *CounterService {
	gens := make(map[domain.CounterCategory]*counterGeneration, len(domain.AllCounters))
	for _, cat := range domain.AllCounters {
		gens[cat] = &counterGeneration{}
	}
	return &CounterService{
		store:   st,
		cache:   c,
		events:  events,
		metrics: m,
		logger:  logger,
		gens:    gens,
	}
}

// Get returns one counter for the caller.
func (s *CounterService) Get(ctx context.Context, caller domain.Caller, cat domain.CounterCategory) (int, error) {
	if !cat.Valid() {
		return 0, domainerrors.Validationf("unknown counter %q", cat)
	}
	if cat.AdminOnly() && !caller.Admin {
		return 0, nil
	}

	key := counterKey(cat, counterScope(caller, cat))
	if s.cache != nil {
		n, err := s.cache.GetInt(key)
		if err == nil {
			s.metrics.CounterLookup(true)
			return n, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("counter cache read failed", "key", key, "error", err)
		}
	}
	s.metrics.CounterLookup(false)

	g := s.gens[cat]
	g.mu.RLock()
	started := g.gen
	g.mu.RUnlock()

	n, err := s.count(ctx, caller, cat)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		g.mu.RLock()
		if g.gen == started {
			if err := s.cache.SetInt(key, n); err != nil {
				s.logger.Warn("counter cache write failed", "key", key, "error", err)
			}
		}
		g.mu.RUnlock()
	}
	return n, nil
}

// All returns every counter for the caller.
func (s *CounterService) All(ctx context.Context, caller domain.Caller) (*domain.Counters, error) {
	out := &domain.Counters{}
	for _, cat := range domain.AllCounters {
		n, err := s.Get(ctx, caller, cat)
		if err != nil {
			return nil, err
		}
		out.Set(cat, n)
	}
	return out, nil
}

// Invalidate discards cached values for every category in inv and tells
// connected clients to refetch. It runs after the mutation has committed, so
// the next Get by the mutating caller observes the new state.
func (s *CounterService) Invalidate(_ context.Context, inv domain.Invalidation) {
	if len(inv) == 0 {
		return
	}
	for _, cat := range inv {
		g, ok := s.gens[cat]
		if !ok {
			continue
		}
		g.mu.Lock()
		g.gen++
		if s.cache != nil {
			if err := s.cache.DropPrefix(counterPrefix(cat)); err != nil {
				s.logger.Error("counter cache invalidation failed", "category", cat, "error", err)
			}
		}
		g.mu.Unlock()
		s.metrics.Invalidated(string(cat))
	}
	s.events.Emit(sse.NewCountersInvalidatedEvent(inv))
}

func (s *CounterService) count(ctx context.Context, caller domain.Caller, cat domain.CounterCategory) (int, error) {
	switch cat {
	case domain.CounterPendingSignatures:
		return s.store.CountPendingSignatures(ctx, caller.UserID)
	case domain.CounterUnapprovedQuotes:
		return s.store.CountUnapprovedQuotes(ctx, caller)
	case domain.CounterUnratedQuotes:
		return s.store.CountUnratedQuotes(ctx, caller)
	case domain.CounterFlaggedQuotes:
		return s.store.CountFlaggedQuotes(ctx)
	case domain.CounterUnapprovedUsers:
		return s.store.CountPendingUsers(ctx)
	}
	return 0, nil
}

// counterScope is the part of the cache key that varies per caller.
// Admin-only categories are global; unapproved quotes are global for admins.
// Unrated quotes depend on the caller's own votes and on the role, which
// decides whether invisible quotes are in the set.
func counterScope(caller domain.Caller, cat domain.CounterCategory) string {
	switch {
	case cat.AdminOnly():
		return "all"
	case cat == domain.CounterUnapprovedQuotes && caller.Admin:
		return "all"
	case cat == domain.CounterUnratedQuotes && caller.Admin:
		return "admin/" + caller.UserID
	default:
		return caller.UserID
	}
}

func counterPrefix(cat domain.CounterCategory) string {
	return "counter/" + string(cat) + "/"
}

func counterKey(cat domain.CounterCategory, scope string) string {
	return counterPrefix(cat) + scope
}
