package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/quotevault/quotevault-server/internal/config"
	"github.com/quotevault/quotevault-server/internal/domain"
	domainerrors "github.com/quotevault/quotevault-server/internal/errors"
	"github.com/quotevault/quotevault-server/internal/id"
	"github.com/quotevault/quotevault-server/internal/media/images"
	"github.com/quotevault/quotevault-server/internal/metrics"
	"github.com/quotevault/quotevault-server/internal/normalize"
	"github.com/quotevault/quotevault-server/internal/search"
	"github.com/quotevault/quotevault-server/internal/sse"
	"github.com/quotevault/quotevault-server/internal/store"
)

// Quote mutations can move a quote into or out of every per-quote list.
var quoteInvalidation = domain.Invalidates(
	domain.CounterPendingSignatures,
	domain.CounterUnapprovedQuotes,
	domain.CounterUnratedQuotes,
	domain.CounterFlaggedQuotes,
)

// LineInput is one line of a create or update request.
type LineInput struct {
	SpeakerName string
	Text        string
	// UserID optionally links the speaker to a registered user.
	UserID string
}

// QuoteInput is the full writable state of a quote. Updates replace every field.
type QuoteInput struct {
	Lines        []LineInput
	Participants []string
	Visible      bool
	Approved     bool
	Redacted     bool
	Notes        string
	SourceURL    string
	// SourceImageRef names a stored screenshot or photo of the original.
	SourceImageRef string
	SaidOn         *time.Time
}

// ListOptions selects quotes for QuoteService.List.
type ListOptions struct {
	Filter  domain.QuoteFilter
	Speaker string
	// Query is free text matched against speakers, lines and notes.
	Query  string
	Limit  int
	Offset int
}

// QuoteService orchestrates the quote lifecycle: creation, moderation,
// participant changes and the signature rows they open.
type QuoteService struct {
	store    store.Store
	search   *search.SearchIndex
	images   *images.Storage
	counters *CounterService
	events   store.EventEmitter
	metrics  *metrics.Metrics
	settings config.SignatureConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewQuoteService creates a new quote service. search and images may be nil.
func NewQuoteService(
	st store.Store,
	searchIndex *search.SearchIndex,
	imageStorage *images.Storage,
	counters *CounterService,
	events store.EventEmitter,
	m *metrics.Metrics,
	settings config.SignatureConfig,
	logger *slog.Logger,
) *QuoteService {
	return &QuoteService{
		store:    st,
		search:   searchIndex,
		images:   imageStorage,
		counters: counters,
		events:   events,
		metrics:  m,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// Create stores a new quote. Only admins may create a quote already
// approved or redacted. An approved quote opens a pending signature for
// each participant.
func (s *QuoteService) Create(ctx context.Context, caller domain.Caller, in QuoteInput) (*domain.Quote, domain.Invalidation, error) {
	if !caller.Admin && (in.Approved || in.Redacted) {
		return nil, nil, domainerrors.Forbidden("Only admins can approve or redact quotes")
	}

	lines, err := s.buildLines(ctx, in.Lines)
	if err != nil {
		return nil, nil, err
	}
	participants, err := s.resolveParticipants(ctx, in.Participants)
	if err != nil {
		return nil, nil, err
	}

	quoteID, err := id.Generate(id.PrefixQuote)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	q := &domain.Quote{
		ID:              quoteID,
		CreatedBy:       caller.UserID,
		Lines:           lines,
		Participants:    participants,
		Visible:         in.Visible,
		Redacted:        in.Redacted,
		Approved:        in.Approved,
		Notes:           normalize.Text(in.Notes),
		SourceURL:       in.SourceURL,
		SourceImageRef:  strings.TrimSpace(in.SourceImageRef),
		SaidOn:          in.SaidOn,
		HadParticipants: len(participants) > 0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if q.Approved {
		q.ApprovedAt = &now
	}

	var open []*domain.Signature
	if q.Approved {
		open, err = openSignatures(q.ID, participants, now)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := s.store.CreateQuote(ctx, q, open); err != nil {
		return nil, nil, fromStore(err, "quote")
	}

	s.index(q)
	s.metrics.QuoteMutation("create")
	s.events.Emit(sse.NewQuoteCreatedEvent(q))
	s.counters.Invalidate(ctx, quoteInvalidation)

	s.logger.Info("quote created",
		"quote_id", q.ID,
		"user_id", caller.UserID,
		"participants", len(participants),
		"approved", q.Approved,
	)

	return q.ViewFor(caller), quoteInvalidation, nil
}

// Get returns a quote with its ledger, tallies and the caller's vote.
// Quotes the caller may not read are reported as not found.
func (s *QuoteService) Get(ctx context.Context, caller domain.Caller, quoteID string) (*domain.QuoteDetail, error) {
	q, err := s.readable(ctx, caller, quoteID)
	if err != nil {
		return nil, err
	}

	sigs, err := s.store.ListSignatures(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	tallies, err := s.store.VoteTallies(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	myVote, err := s.store.GetVote(ctx, quoteID, caller.UserID)
	if err != nil {
		return nil, err
	}

	detail := &domain.QuoteDetail{
		Quote:      q.ViewFor(caller),
		Signatures: sigs,
		Tallies:    tallies,
		MyVote:     myVote,
	}
	if q.Approved {
		detail.EligibleSigners = domain.EligibleSigners(q, sigs)
		detail.Deadline = domain.Deadline(domain.Current(q, sigs), s.settings.ExpiryWindow, s.settings.Location)
	}
	return detail, nil
}

// Update replaces a quote's writable state. Submitters may edit until the
// quote is approved; approval, unapproval and redaction are admin actions.
func (s *QuoteService) Update(ctx context.Context, caller domain.Caller, quoteID string, in QuoteInput) (*domain.Quote, domain.Invalidation, error) {
	q, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, nil, fromStore(err, "quote")
	}
	if !q.ReadableBy(caller) {
		return nil, nil, domainerrors.NotFound("quote not found")
	}
	if !q.EditableBy(caller) {
		return nil, nil, domainerrors.Forbidden("You cannot edit this quote")
	}
	if !caller.Admin && (in.Approved != q.Approved || in.Redacted != q.Redacted) {
		return nil, nil, domainerrors.Forbidden("Only admins can approve or redact quotes")
	}

	lines, err := s.buildLines(ctx, in.Lines)
	if err != nil {
		return nil, nil, err
	}
	participants, err := s.resolveParticipants(ctx, in.Participants)
	if err != nil {
		return nil, nil, err
	}
	if in.Approved && q.HadParticipants && len(participants) == 0 {
		return nil, nil, domainerrors.ValidationWithDetails(
			"An approved quote must keep at least one participant",
			map[string]string{"participants": "required"},
		)
	}

	now := s.now().UTC()
	wasApproved := q.Approved
	previous := q.Participants

	q.Lines = lines
	q.Participants = participants
	q.Visible = in.Visible
	q.Redacted = in.Redacted
	q.Approved = in.Approved
	q.Notes = normalize.Text(in.Notes)
	q.SourceURL = in.SourceURL
	q.SourceImageRef = strings.TrimSpace(in.SourceImageRef)
	q.SaidOn = in.SaidOn
	q.UpdatedAt = now

	var change store.QuoteChange
	switch {
	case q.Approved && !wasApproved:
		// Approval starts the clock for everyone still owing a decision,
		// including rows left pending by an earlier approval.
		q.ApprovedAt = &now
		change.ReopenPendingAt = &now
		change.Open, err = openSignatures(q.ID, participants, now)
	case q.Approved:
		change.Open, err = openSignatures(q.ID, added(previous, participants), now)
	default:
		q.ApprovedAt = nil
	}
	if err != nil {
		return nil, nil, err
	}

	if err := s.store.UpdateQuote(ctx, q, change); err != nil {
		return nil, nil, fromStore(err, "quote")
	}

	s.index(q)
	s.metrics.QuoteMutation("update")
	s.events.Emit(sse.NewQuoteUpdatedEvent(q))
	s.counters.Invalidate(ctx, quoteInvalidation)

	s.logger.Info("quote updated",
		"quote_id", q.ID,
		"user_id", caller.UserID,
		"approved", q.Approved,
		"opened", len(change.Open),
	)

	return q.ViewFor(caller), quoteInvalidation, nil
}

// Delete removes a quote with its signatures, votes and flags, then deletes
// the stored signature images.
func (s *QuoteService) Delete(ctx context.Context, caller domain.Caller, quoteID string) (domain.Invalidation, error) {
	q, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, fromStore(err, "quote")
	}
	if !q.ReadableBy(caller) {
		return nil, domainerrors.NotFound("quote not found")
	}
	if !q.EditableBy(caller) {
		return nil, domainerrors.Forbidden("You cannot delete this quote")
	}

	refs, err := s.store.DeleteQuote(ctx, quoteID)
	if err != nil {
		return nil, fromStore(err, "quote")
	}

	s.removeImages(refs)
	if s.search != nil {
		if err := s.search.DeleteQuote(quoteID); err != nil {
			s.logger.Warn("failed to remove quote from search index", "quote_id", quoteID, "error", err)
		}
	}
	s.metrics.QuoteMutation("delete")
	s.events.Emit(sse.NewQuoteDeletedEvent(quoteID, s.now().UTC()))
	s.counters.Invalidate(ctx, quoteInvalidation)

	s.logger.Info("quote deleted",
		"quote_id", quoteID,
		"user_id", caller.UserID,
		"images", len(refs),
	)
	return quoteInvalidation, nil
}

// List returns the quotes visible to the caller under opts, as the caller may
// see them.
func (s *QuoteService) List(ctx context.Context, caller domain.Caller, opts ListOptions) ([]*domain.Quote, error) {
	filter := opts.Filter
	if filter == "" {
		filter = domain.FilterAll
	}
	if !filter.Valid() {
		return nil, domainerrors.Validationf("unknown filter %q", filter)
	}
	if filter == domain.FilterFlagged && !caller.Admin {
		return nil, domainerrors.Forbidden("Admin access required")
	}

	query := domain.QuoteQuery{
		Viewer:  caller,
		Filter:  filter,
		Speaker: normalize.DisplayName(opts.Speaker),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}

	if opts.Query != "" {
		if s.search == nil {
			return nil, domainerrors.Internal("search is not available")
		}
		ids, err := s.search.SearchIDs(ctx, opts.Query, search.DefaultLimit)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []string{}
		}
		query.IDs = ids
	}

	quotes, err := s.store.ListQuotes(ctx, query)
	if err != nil {
		return nil, err
	}
	for i, q := range quotes {
		quotes[i] = q.ViewFor(caller)
	}
	return quotes, nil
}

// CanRead reports whether the user may read the quote. It backs event
// filtering, so lookup failures deny.
func (s *QuoteService) CanRead(ctx context.Context, userID, quoteID string) bool {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return false
	}
	q, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return false
	}
	return q.ReadableBy(domain.CallerFor(u))
}

// Reindex rebuilds the search index from the store.
func (s *QuoteService) Reindex(ctx context.Context) (int, error) {
	if s.search == nil {
		return 0, nil
	}

	const page = 500
	system := domain.Caller{Admin: true}
	var docs []*search.QuoteDocument
	for offset := 0; ; offset += page {
		quotes, err := s.store.ListQuotes(ctx, domain.QuoteQuery{
			Viewer: system,
			Filter: domain.FilterAll,
			Limit:  page,
			Offset: offset,
		})
		if err != nil {
			return 0, err
		}
		for _, q := range quotes {
			docs = append(docs, search.NewQuoteDocument(q))
		}
		if len(quotes) < page {
			break
		}
	}

	if err := s.search.Reindex(docs); err != nil {
		return 0, err
	}
	s.logger.Info("search index rebuilt", "quotes", len(docs))
	return len(docs), nil
}

func (s *QuoteService) readable(ctx context.Context, caller domain.Caller, quoteID string) (*domain.Quote, error) {
	q, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, fromStore(err, "quote")
	}
	if !q.ReadableBy(caller) {
		return nil, domainerrors.NotFound("quote not found")
	}
	return q, nil
}

// index updates the search document; failures only cost search freshness.
func (s *QuoteService) index(q *domain.Quote) {
	if s.search == nil {
		return
	}
	if err := s.search.IndexQuote(search.NewQuoteDocument(q)); err != nil {
		s.logger.Warn("failed to index quote", "quote_id", q.ID, "error", err)
	}
}

func (s *QuoteService) removeImages(refs []string) {
	if s.images == nil {
		return
	}
	for _, ref := range refs {
		if err := s.images.Delete(ref); err != nil {
			s.logger.Warn("failed to delete signature image", "ref", ref, "error", err)
		}
	}
}

// resolveParticipants deduplicates ids, keeping first-seen order, and checks
// that each names a registered user.
func (s *QuoteService) resolveParticipants(ctx context.Context, ids []string) ([]string, error) {
	var out []string
	for _, userID := range ids {
		if userID == "" {
			return nil, domainerrors.ValidationWithDetails("participant id is empty",
				map[string]string{"participants": "empty id"})
		}
		if !slices.Contains(out, userID) {
			out = append(out, userID)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}

	unknown, err := s.firstUnknownUser(ctx, out)
	if err != nil {
		return nil, err
	}
	if unknown != "" {
		return nil, domainerrors.ValidationWithDetails("unknown participant "+unknown,
			map[string]string{"participants": unknown})
	}
	return out, nil
}

// firstUnknownUser returns the first of ids with no user record, or "".
func (s *QuoteService) firstUnknownUser(ctx context.Context, ids []string) (string, error) {
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return "", err
	}
	known := make(map[string]bool, len(users))
	for _, u := range users {
		known[u.ID] = true
	}
	for _, userID := range ids {
		if !known[userID] {
			return userID, nil
		}
	}
	return "", nil
}

// buildLines normalizes line input. A line needs a speaker or text; a
// quote needs at least one line. Linked users must exist.
func (s *QuoteService) buildLines(ctx context.Context, in []LineInput) ([]domain.Line, error) {
	if len(in) == 0 {
		return nil, domainerrors.ValidationWithDetails("A quote needs at least one line",
			map[string]string{"lines": "required"})
	}
	lines := make([]domain.Line, 0, len(in))
	for i, l := range in {
		speaker := normalize.DisplayName(l.SpeakerName)
		text := normalize.Text(l.Text)
		if speaker == "" && text == "" {
			return nil, domainerrors.ValidationWithDetails("Each line needs a speaker or text",
				map[string]any{"line": i})
		}
		lineID, err := id.Generate(id.PrefixLine)
		if err != nil {
			return nil, err
		}
		lines = append(lines, domain.Line{
			ID:          lineID,
			Position:    i,
			SpeakerName: speaker,
			Text:        text,
			UserID:      strings.TrimSpace(l.UserID),
		})
	}

	q := &domain.Quote{Lines: lines}
	if linked := q.LinkedUsers(); len(linked) > 0 {
		unknown, err := s.firstUnknownUser(ctx, linked)
		if err != nil {
			return nil, err
		}
		if unknown != "" {
			return nil, domainerrors.ValidationWithDetails("unknown line user "+unknown,
				map[string]string{"lines": unknown})
		}
	}
	return lines, nil
}

// openSignatures builds pending rows for userIDs opened at at.
func openSignatures(quoteID string, userIDs []string, at time.Time) ([]*domain.Signature, error) {
	sigs := make([]*domain.Signature, 0, len(userIDs))
	for _, userID := range userIDs {
		sigID, err := id.Generate(id.PrefixSignature)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, &domain.Signature{
			ID:        sigID,
			QuoteID:   quoteID,
			SignerKey: domain.UserSignerKey(userID),
			UserID:    userID,
			State:     domain.SignaturePending,
			OpenedAt:  at,
		})
	}
	return sigs, nil
}

// added returns the ids in next that are not in prev.
func added(prev, next []string) []string {
	var out []string
	for _, v := range next {
		if !slices.Contains(prev, v) {
			out = append(out, v)
		}
	}
	return out
}
