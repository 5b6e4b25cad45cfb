package sqlite

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quotevault/quotevault-server/internal/domain"
	"github.com/quotevault/quotevault-server/internal/id"
	"github.com/quotevault/quotevault-server/internal/store"
)

func resolution(q *domain.Quote, userID string, state domain.SignatureState) *domain.Signature {
	now := time.Now()
	return &domain.Signature{
		ID:         id.MustGenerate(id.PrefixSignature),
		QuoteID:    q.ID,
		SignerKey:  domain.UserSignerKey(userID),
		UserID:     userID,
		State:      state,
		OpenedAt:   now,
		ResolvedAt: &now,
	}
}

func guestResolution(q *domain.Quote, name string) *domain.Signature {
	now := time.Now()
	return &domain.Signature{
		ID:         id.MustGenerate(id.PrefixSignature),
		QuoteID:    q.ID,
		SignerKey:  domain.GuestSignerKey(name),
		GuestName:  name,
		State:      domain.SignatureSigned,
		ImageRef:   "guest.png",
		OpenedAt:   now,
		ResolvedAt: &now,
	}
}

func TestResolveSignature_PendingToSigned(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "author", "Author")
	mustCreateUser(t, s, "p1", "One")
	approvedAt := time.Now().Add(-time.Hour)
	q := mustCreateApprovedQuote(t, s, "author", approvedAt, "p1")

	sig := resolution(q, "p1", domain.SignatureSigned)
	sig.ImageRef = "sigimg-1.png"
	sig.ImageDigest = "abc"
	got, err := s.ResolveSignature(ctx, sig)
	if err != nil {
		t.Fatalf("ResolveSignature: %v", err)
	}
	if got.State != domain.SignatureSigned || got.ImageRef != "sigimg-1.png" {
		t.Errorf("unexpected row: %+v", got)
	}
	// The existing row keeps its id and window start.
	if got.ID == sig.ID {
		t.Error("expected the pending row to be updated in place")
	}
	if got.OpenedAt.Sub(approvedAt).Abs() > time.Millisecond {
		t.Errorf("OpenedAt: got %v, want %v", got.OpenedAt, approvedAt)
	}

	n, err := s.CountPendingSignatures(ctx, "p1")
	if err != nil || n != 0 {
		t.Errorf("CountPendingSignatures: got %d, %v", n, err)
	}
}

func TestResolveSignature_TerminalConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "author", "Author")
	mustCreateUser(t, s, "p1", "One")
	q := mustCreateApprovedQuote(t, s, "author", time.Now(), "p1")

	if _, err := s.ResolveSignature(ctx, resolution(q, "p1", domain.SignatureRefused)); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	_, err := s.ResolveSignature(ctx, resolution(q, "p1", domain.SignatureSigned))
	var conflict *store.StateConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected StateConflictError, got %v", err)
	}
	if conflict.State != domain.SignatureRefused {
		t.Errorf("State: got %q", conflict.State)
	}
	if !errors.Is(err, store.ErrConflict) {
		t.Error("expected errors.Is ErrConflict")
	}
}

func TestResolveSignature_ConcurrentSingleWinner(t *testing.T) {
	s := newTestStore(t)
	mustCreateUser(t, s, "author", "Author")
	mustCreateUser(t, s, "p1", "One")
	q := mustCreateApprovedQuote(t, s, "author", time.Now(), "p1")

	const workers = 8
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state := domain.SignatureSigned
			if i%2 == 1 {
				state = domain.SignatureRefused
			}
			_, err := s.ResolveSignature(context.Background(), resolution(q, "p1", state))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, store.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", wins.Load())
	}
	if conflicts.Load() != workers-1 {
		t.Errorf("expected %d conflicts, got %d", workers-1, conflicts.Load())
	}
}

func TestResolveSignature_GuestOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "author", "Author")
	q := mustCreateApprovedQuote(t, s, "author", time.Now())

	first, err := s.ResolveSignature(ctx, guestResolution(q, "Aunt May"))
	if err != nil {
		t.Fatalf("guest sign: %v", err)
	}
	if !first.IsGuest() || first.GuestName != "Aunt May" {
		t.Errorf("unexpected guest row: %+v", first)
	}

	_, err = s.ResolveSignature(ctx, guestResolution(q, "aunt  may"))
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected conflict for equivalent guest name, got %v", err)
	}
}

func TestResolveSignature_MissingQuote(t *testing.T) {
	s := newTestStore(t)
	mustCreateUser(t, s, "p1", "One")
	q := &domain.Quote{ID: "quote-missing"}
	if _, err := s.ResolveSignature(context.Background(), resolution(q, "p1", domain.SignatureSigned)); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveSignature_UnapprovedQuote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "author", "Author")
	mustCreateUser(t, s, "p1", "One")
	q := mustCreateApprovedQuote(t, s, "author", time.Now(), "p1")

	q.Approved = false
	q.ApprovedAt = nil
	if err := s.UpdateQuote(ctx, q, store.QuoteChange{}); err != nil {
		t.Fatalf("UpdateQuote: %v", err)
	}

	if _, err := s.ResolveSignature(ctx, resolution(q, "p1", domain.SignatureSigned)); !errors.Is(err, store.ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
	if _, err := s.ResolveSignature(ctx, guestResolution(q, "Visitor")); !errors.Is(err, store.ErrNotApproved) {
		t.Fatalf("guest: expected ErrNotApproved, got %v", err)
	}

	sigs, err := s.ListSignatures(ctx, q.ID)
	if err != nil {
		t.Fatalf("ListSignatures: %v", err)
	}
	if len(sigs) != 1 || sigs[0].State != domain.SignaturePending {
		t.Errorf("ledger changed: %+v", sigs)
	}
}

func TestClearSignature(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "author", "Author")
	mustCreateUser(t, s, "p1", "One")
	q := mustCreateApprovedQuote(t, s, "author", time.Now().Add(-time.Hour), "p1")

	sig := resolution(q, "p1", domain.SignatureSigned)
	sig.ImageRef = "sigimg-old.png"
	signed, err := s.ResolveSignature(ctx, sig)
	if err != nil {
		t.Fatalf("ResolveSignature: %v", err)
	}

	reopen := time.Now()
	cleared, oldRef, err := s.ClearSignature(ctx, signed.ID, reopen)
	if err != nil {
		t.Fatalf("ClearSignature: %v", err)
	}
	if oldRef != "sigimg-old.png" {
		t.Errorf("oldRef: got %q", oldRef)
	}
	if cleared.State != domain.SignaturePending || cleared.ImageRef != "" || cleared.ResolvedAt != nil {
		t.Errorf("unexpected cleared row: %+v", cleared)
	}

	stored, err := s.GetSignature(ctx, signed.ID)
	if err != nil {
		t.Fatalf("GetSignature: %v", err)
	}
	if stored.State != domain.SignaturePending || stored.OpenedAt.Sub(reopen).Abs() > time.Millisecond {
		t.Errorf("stored row: %+v", stored)
	}

	// Clearing a pending row conflicts.
	if _, _, err := s.ClearSignature(ctx, signed.ID, reopen); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if _, _, err := s.ClearSignature(ctx, "sig-missing", reopen); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// The signer may act again.
	if _, err := s.ResolveSignature(ctx, resolution(q, "p1", domain.SignatureRefused)); err != nil {
		t.Errorf("resolve after clear: %v", err)
	}
}

func TestListPendingOpenedBeforeAndRefuse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "author", "Author")
	mustCreateUser(t, s, "p1", "One")
	mustCreateUser(t, s, "p2", "Two")

	old := mustCreateApprovedQuote(t, s, "author", time.Now().Add(-15*24*time.Hour), "p1", "p2")
	fresh := mustCreateApprovedQuote(t, s, "author", time.Now(), "p1")

	if _, err := s.ResolveSignature(ctx, resolution(old, "p1", domain.SignatureSigned)); err != nil {
		t.Fatalf("ResolveSignature: %v", err)
	}

	cutoff := time.Now().Add(-14 * 24 * time.Hour)
	due, err := s.ListPendingOpenedBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListPendingOpenedBefore: %v", err)
	}
	if len(due) != 1 || due[0].UserID != "p2" || due[0].QuoteID != old.ID {
		t.Fatalf("due: got %+v", due)
	}

	n, err := s.RefusePending(ctx, old.ID, []string{due[0].ID}, cutoff, time.Now())
	if err != nil || n != 1 {
		t.Fatalf("RefusePending: got %d, %v", n, err)
	}

	// Idempotent.
	n, err = s.RefusePending(ctx, old.ID, []string{due[0].ID}, cutoff, time.Now())
	if err != nil || n != 0 {
		t.Errorf("second RefusePending: got %d, %v", n, err)
	}

	sigs, err := s.ListSignatures(ctx, old.ID)
	if err != nil {
		t.Fatalf("ListSignatures: %v", err)
	}
	for _, sig := range sigs {
		switch sig.UserID {
		case "p1":
			if sig.State != domain.SignatureSigned || sig.AutoRefused {
				t.Errorf("p1 should stay signed: %+v", sig)
			}
		case "p2":
			if sig.State != domain.SignatureRefused || !sig.AutoRefused {
				t.Errorf("p2 should be auto-refused: %+v", sig)
			}
		}
	}

	n, err = s.CountPendingSignatures(ctx, "p1")
	if err != nil || n != 1 {
		t.Errorf("p1 pending should be only the fresh quote %s: got %d, %v", fresh.ID, n, err)
	}
}

func TestListPendingOpenedBefore_SkipsRemovedParticipants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "author", "Author")
	mustCreateUser(t, s, "p1", "One")
	mustCreateUser(t, s, "p2", "Two")

	q := mustCreateApprovedQuote(t, s, "author", time.Now().Add(-15*24*time.Hour), "p1", "p2")

	q.Participants = []string{"p1"}
	if err := s.UpdateQuote(ctx, q, store.QuoteChange{}); err != nil {
		t.Fatalf("UpdateQuote: %v", err)
	}

	cutoff := time.Now().Add(-14 * 24 * time.Hour)
	due, err := s.ListPendingOpenedBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListPendingOpenedBefore: %v", err)
	}
	if len(due) != 1 || due[0].UserID != "p1" {
		t.Fatalf("due: got %+v", due)
	}
	if n, err := s.CountPendingSignatures(ctx, "p2"); err != nil || n != 0 {
		t.Errorf("CountPendingSignatures(p2): got %d, %v", n, err)
	}

	// Adding p2 back gives the kept row a fresh window.
	reopened := time.Now().Truncate(time.Second)
	q.Participants = []string{"p1", "p2"}
	change := store.QuoteChange{Open: pendingRows(&domain.Quote{ID: q.ID, Participants: []string{"p2"}}, reopened)}
	if err := s.UpdateQuote(ctx, q, change); err != nil {
		t.Fatalf("UpdateQuote: %v", err)
	}

	sigs, err := s.ListSignatures(ctx, q.ID)
	if err != nil {
		t.Fatalf("ListSignatures: %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(sigs))
	}
	for _, sig := range sigs {
		if sig.UserID == "p2" && !sig.OpenedAt.Equal(reopened) {
			t.Errorf("p2 window: got %v, want %v", sig.OpenedAt, reopened)
		}
	}
	if n, err := s.CountPendingSignatures(ctx, "p2"); err != nil || n != 1 {
		t.Errorf("CountPendingSignatures(p2): got %d, %v", n, err)
	}
}

func TestListPendingOpenedBefore_IncludesClearedGuest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "author", "Author")
	q := mustCreateApprovedQuote(t, s, "author", time.Now().Add(-40*24*time.Hour))

	guest, err := s.ResolveSignature(ctx, guestResolution(q, "Visitor"))
	if err != nil {
		t.Fatalf("ResolveSignature: %v", err)
	}
	if _, _, err := s.ClearSignature(ctx, guest.ID, time.Now().Add(-31*24*time.Hour)); err != nil {
		t.Fatalf("ClearSignature: %v", err)
	}

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	due, err := s.ListPendingOpenedBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListPendingOpenedBefore: %v", err)
	}
	if len(due) != 1 || due[0].ID != guest.ID || due[0].GuestName != "Visitor" {
		t.Fatalf("due: got %+v", due)
	}

	n, err := s.RefusePending(ctx, q.ID, []string{guest.ID}, cutoff, time.Now())
	if err != nil || n != 1 {
		t.Fatalf("RefusePending: got %d, %v", n, err)
	}
	got, err := s.GetSignature(ctx, guest.ID)
	if err != nil {
		t.Fatalf("GetSignature: %v", err)
	}
	if got.State != domain.SignatureRefused || !got.AutoRefused {
		t.Errorf("guest row should be auto-refused: %+v", got)
	}
}

func TestRefusePending_RowReopenedAfterListing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "author", "Author")
	mustCreateUser(t, s, "p1", "One")
	q := mustCreateApprovedQuote(t, s, "author", time.Now().Add(-15*24*time.Hour), "p1")

	cutoff := time.Now().Add(-14 * 24 * time.Hour)
	due, err := s.ListPendingOpenedBefore(ctx, cutoff)
	if err != nil || len(due) != 1 {
		t.Fatalf("ListPendingOpenedBefore: got %+v, %v", due, err)
	}

	// The signer signs and an admin clears it before the write lands.
	signed, err := s.ResolveSignature(ctx, resolution(q, "p1", domain.SignatureSigned))
	if err != nil {
		t.Fatalf("ResolveSignature: %v", err)
	}
	if _, _, err := s.ClearSignature(ctx, signed.ID, time.Now()); err != nil {
		t.Fatalf("ClearSignature: %v", err)
	}

	n, err := s.RefusePending(ctx, q.ID, []string{due[0].ID}, cutoff, time.Now())
	if err != nil || n != 0 {
		t.Fatalf("RefusePending: got %d, %v", n, err)
	}
	got, err := s.GetSignature(ctx, due[0].ID)
	if err != nil {
		t.Fatalf("GetSignature: %v", err)
	}
	if got.State != domain.SignaturePending || got.AutoRefused {
		t.Errorf("reopened row should stay pending: %+v", got)
	}
}

func TestRefusePending_ParticipantRemovedAfterListing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "author", "Author")
	mustCreateUser(t, s, "p1", "One")
	mustCreateUser(t, s, "p2", "Two")
	q := mustCreateApprovedQuote(t, s, "author", time.Now().Add(-15*24*time.Hour), "p1", "p2")

	cutoff := time.Now().Add(-14 * 24 * time.Hour)
	due, err := s.ListPendingOpenedBefore(ctx, cutoff)
	if err != nil || len(due) != 2 {
		t.Fatalf("ListPendingOpenedBefore: got %+v, %v", due, err)
	}

	q.Participants = []string{"p1"}
	if err := s.UpdateQuote(ctx, q, store.QuoteChange{}); err != nil {
		t.Fatalf("UpdateQuote: %v", err)
	}

	ids := []string{due[0].ID, due[1].ID}
	n, err := s.RefusePending(ctx, q.ID, ids, cutoff, time.Now())
	if err != nil || n != 1 {
		t.Fatalf("RefusePending: got %d, %v", n, err)
	}

	sigs, err := s.ListSignatures(ctx, q.ID)
	if err != nil {
		t.Fatalf("ListSignatures: %v", err)
	}
	for _, sig := range sigs {
		switch sig.UserID {
		case "p1":
			if sig.State != domain.SignatureRefused {
				t.Errorf("p1 should be auto-refused: %+v", sig)
			}
		case "p2":
			if sig.State != domain.SignaturePending {
				t.Errorf("removed p2 should stay pending: %+v", sig)
			}
		}
	}
}

func TestRefusePending_QuoteUnapprovedAfterListing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "author", "Author")
	mustCreateUser(t, s, "p1", "One")
	q := mustCreateApprovedQuote(t, s, "author", time.Now().Add(-15*24*time.Hour), "p1")

	cutoff := time.Now().Add(-14 * 24 * time.Hour)
	due, err := s.ListPendingOpenedBefore(ctx, cutoff)
	if err != nil || len(due) != 1 {
		t.Fatalf("ListPendingOpenedBefore: got %+v, %v", due, err)
	}

	q.Approved = false
	q.ApprovedAt = nil
	if err := s.UpdateQuote(ctx, q, store.QuoteChange{}); err != nil {
		t.Fatalf("UpdateQuote: %v", err)
	}

	n, err := s.RefusePending(ctx, q.ID, []string{due[0].ID}, cutoff, time.Now())
	if err != nil || n != 0 {
		t.Errorf("RefusePending: got %d, %v", n, err)
	}
}
