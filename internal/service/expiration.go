package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quotevault/quotevault-server/internal/config"
	"github.com/quotevault/quotevault-server/internal/domain"
	"github.com/quotevault/quotevault-server/internal/metrics"
	"github.com/quotevault/quotevault-server/internal/sse"
	"github.com/quotevault/quotevault-server/internal/store"
)

// SweepResult summarizes one expiration sweep.
type SweepResult struct {
	// Expired counts signatures auto-refused by this run.
	Expired int `json:"expired"`
	// Quotes counts quotes that had at least one signature expire.
	Quotes int `json:"quotes"`
	// Failed lists quotes whose refusal could not be written.
	Failed       []string            `json:"failed,omitempty"`
	Invalidation domain.Invalidation `json:"-"`
}

// ExpirationService auto-refuses pending signatures whose window has lapsed.
type ExpirationService struct {
	store    store.Store
	counters *CounterService
	events   store.EventEmitter
	metrics  *metrics.Metrics
	settings config.SignatureConfig
	logger   *slog.Logger
	now      func() time.Time

	// mu serializes sweeps from the scheduler and manual triggers.
	mu sync.Mutex
}

// NewExpirationService creates a new expiration service.
func NewExpirationService(
	st store.Store,
	counters *CounterService,
	events store.EventEmitter,
	m *metrics.Metrics,
	settings config.SignatureConfig,
	logger *slog.Logger,
) *ExpirationService {
	return &ExpirationService{
		store:    st,
		counters: counters,
		events:   events,
		metrics:  m,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// Sweep refuses every pending signature on an approved quote whose expiry,
// as computed by domain.ExpiresAt, is at or before now. Guest rows reopened
// by an admin lapse like any other. It is idempotent: the write re-checks
// every listing condition, so only rows still due when it runs are touched.
// A failure on one quote is logged and does not stop the others.
func (s *ExpirationService) Sweep(ctx context.Context) (*SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	now := s.now().UTC()

	cutoff := domain.ExpiryCutoff(now, s.settings.ExpiryWindow, s.settings.Location)
	candidates, err := s.store.ListPendingOpenedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var (
		order   []string
		byQuote = make(map[string][]string)
	)
	for _, sig := range candidates {
		if _, ok := byQuote[sig.QuoteID]; !ok {
			order = append(order, sig.QuoteID)
		}
		byQuote[sig.QuoteID] = append(byQuote[sig.QuoteID], sig.ID)
	}

	result := &SweepResult{}
	for _, quoteID := range order {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		n, err := s.store.RefusePending(ctx, quoteID, byQuote[quoteID], cutoff, now)
		if err != nil {
			s.logger.Error("failed to expire signatures",
				"quote_id", quoteID,
				"signatures", len(byQuote[quoteID]),
				"error", err,
			)
			result.Failed = append(result.Failed, quoteID)
			continue
		}
		if n == 0 {
			continue
		}

		result.Expired += n
		result.Quotes++
		s.events.Emit(sse.NewSignaturesExpiredEvent(quoteID, n))
		s.logger.Info("signatures expired", "quote_id", quoteID, "count", n)
	}

	if result.Expired > 0 {
		result.Invalidation = signatureInvalidation
		s.counters.Invalidate(ctx, result.Invalidation)
	}
	s.metrics.SweepCompleted(time.Since(start), result.Expired, len(result.Failed))

	return result, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *ExpirationService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *ExpirationService) runOnce(ctx context.Context) {
	result, err := s.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("expiration sweep failed", "error", err)
		}
		return
	}
	if result.Expired > 0 || len(result.Failed) > 0 {
		s.logger.Info("expiration sweep completed",
			"expired", result.Expired,
			"quotes", result.Quotes,
			"failed", len(result.Failed),
		)
	}
}
