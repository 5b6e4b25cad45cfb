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

var voteInvalidation = domain.Invalidates(domain.CounterUnratedQuotes)

// VoteService casts rarity votes and keeps each quote's rank current.
type VoteService struct {
	store    store.Store
	counters *CounterService
	events   store.EventEmitter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewVoteService creates a new vote service.
func NewVoteService(st store.Store, counters *CounterService, events store.EventEmitter, m *metrics.Metrics, logger *slog.Logger) *VoteService {
	return &VoteService{
		store:    st,
		counters: counters,
		events:   events,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Cast applies the caller's choice with toggle semantics: nil or the
// caller's current tier clears the vote, any other tier replaces it. The
// quote's rank is recomputed in the same transaction.
func (s *VoteService) Cast(ctx context.Context, caller domain.Caller, quoteID string, choice *domain.Rarity) (*domain.VoteOutcome, domain.Invalidation, error) {
	if choice != nil {
		if _, ok := domain.ParseRarity(string(*choice)); !ok {
			return nil, nil, domainerrors.ValidationWithDetails("unknown rarity "+string(*choice),
				map[string]string{"rarity": "must be one of common, uncommon, rare, epic, legendary"})
		}
	}

	q, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, nil, fromStore(err, "quote")
	}
	if !q.ReadableBy(caller) {
		return nil, nil, domainerrors.NotFound("quote not found")
	}
	if !q.Approved {
		return nil, nil, domainerrors.NotApproved(q.ID)
	}

	outcome, err := s.store.ApplyVote(ctx, quoteID, caller.UserID, choice, s.now().UTC())
	if err != nil {
		return nil, nil, fromStore(err, "quote")
	}

	s.metrics.VoteCast()
	s.events.Emit(sse.NewVoteCastEvent(quoteID, outcome.Rank))
	s.counters.Invalidate(ctx, voteInvalidation)

	s.logger.Info("rarity vote cast",
		"quote_id", quoteID,
		"user_id", caller.UserID,
		"vote", rarityString(outcome.MyVote),
		"rank", rarityString(outcome.Rank),
	)

	return outcome, voteInvalidation, nil
}

func rarityString(r *domain.Rarity) string {
	if r == nil {
		return "none"
	}
	return string(*r)
}
