package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/quotevault/quotevault-server/internal/domain"
	domainerrors "github.com/quotevault/quotevault-server/internal/errors"
	"github.com/quotevault/quotevault-server/internal/metrics"
	"github.com/quotevault/quotevault-server/internal/sse"
	"github.com/quotevault/quotevault-server/internal/store"
)

var flagInvalidation = domain.Invalidates(domain.CounterFlaggedQuotes)

// FlagService records review flags and lets admins dismiss them.
type FlagService struct {
	store    store.Store
	counters *CounterService
	events   store.EventEmitter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewFlagService creates a new flag service.
func NewFlagService(st store.Store, counters *CounterService, events store.EventEmitter, m *metrics.Metrics, logger *slog.Logger) *FlagService {
	return &FlagService{
		store:    st,
		counters: counters,
		events:   events,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Flag marks a visible quote for review. Flagging twice is a no-op.
func (s *FlagService) Flag(ctx context.Context, caller domain.Caller, quoteID string) (*domain.FlagOutcome, domain.Invalidation, error) {
	q, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, nil, fromStore(err, "quote")
	}
	if !q.ReadableBy(caller) {
		return nil, nil, domainerrors.NotFound("quote not found")
	}
	if !q.Visible {
		return nil, nil, domainerrors.ErrNotFlaggable.WithDetails(map[string]string{"quote_id": quoteID})
	}

	outcome, err := s.store.AddFlag(ctx, quoteID, caller.UserID, s.now().UTC())
	if err != nil {
		return nil, nil, fromStore(err, "quote")
	}
	if !outcome.Added {
		return outcome, nil, nil
	}

	s.metrics.FlagAdded()
	s.events.Emit(sse.NewFlagAddedEvent(quoteID, outcome.FlagCount))
	s.counters.Invalidate(ctx, flagInvalidation)

	s.logger.Info("quote flagged",
		"quote_id", quoteID,
		"user_id", caller.UserID,
		"flag_count", outcome.FlagCount,
	)

	return outcome, flagInvalidation, nil
}

// Dismiss removes every flag on a quote after review. Admin only.
func (s *FlagService) Dismiss(ctx context.Context, caller domain.Caller, quoteID string) (int, domain.Invalidation, error) {
	if !caller.Admin {
		return 0, nil, domainerrors.Forbidden("Admin access required")
	}
	if _, err := s.store.GetQuote(ctx, quoteID); err != nil {
		return 0, nil, fromStore(err, "quote")
	}

	n, err := s.store.ClearFlags(ctx, quoteID)
	if err != nil {
		return 0, nil, err
	}
	if n == 0 {
		return 0, nil, nil
	}

	s.events.Emit(sse.NewFlagsClearedEvent(quoteID))
	s.counters.Invalidate(ctx, flagInvalidation)

	s.logger.Info("quote flags dismissed",
		"quote_id", quoteID,
		"user_id", caller.UserID,
		"dismissed", n,
	)

	return n, flagInvalidation, nil
}
