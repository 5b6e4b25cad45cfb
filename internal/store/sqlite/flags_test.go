package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quotevault/quotevault-server/internal/store"
)

func TestAddFlag_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "author", "Author")
	mustCreateUser(t, s, "a", "Ann")
	mustCreateUser(t, s, "b", "Ben")
	q := mustCreateApprovedQuote(t, s, "author", time.Now())

	out, err := s.AddFlag(ctx, q.ID, "a", time.Now())
	if err != nil {
		t.Fatalf("AddFlag: %v", err)
	}
	if !out.Added || out.FlagCount != 1 {
		t.Errorf("first flag: %+v", out)
	}

	out, err = s.AddFlag(ctx, q.ID, "a", time.Now())
	if err != nil {
		t.Fatalf("AddFlag repeat: %v", err)
	}
	if out.Added || out.FlagCount != 1 {
		t.Errorf("repeat flag should be absorbed: %+v", out)
	}

	out, err = s.AddFlag(ctx, q.ID, "b", time.Now())
	if err != nil {
		t.Fatalf("AddFlag: %v", err)
	}
	if !out.Added || out.FlagCount != 2 {
		t.Errorf("second flagger: %+v", out)
	}

	stored, err := s.GetQuote(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if stored.FlagCount != 2 {
		t.Errorf("FlagCount: got %d", stored.FlagCount)
	}
}

func TestAddFlag_MissingQuote(t *testing.T) {
	s := newTestStore(t)
	mustCreateUser(t, s, "a", "Ann")
	if _, err := s.AddFlag(context.Background(), "quote-missing", "a", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClearFlagsAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateUser(t, s, "author", "Author")
	mustCreateUser(t, s, "a", "Ann")
	q1 := mustCreateApprovedQuote(t, s, "author", time.Now())
	q2 := mustCreateApprovedQuote(t, s, "author", time.Now())
	mustCreateApprovedQuote(t, s, "author", time.Now())

	for _, qid := range []string{q1.ID, q2.ID} {
		if _, err := s.AddFlag(ctx, qid, "a", time.Now()); err != nil {
			t.Fatalf("AddFlag: %v", err)
		}
	}
	if _, err := s.AddFlag(ctx, q1.ID, "author", time.Now()); err != nil {
		t.Fatalf("AddFlag: %v", err)
	}

	n, err := s.CountFlaggedQuotes(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CountFlaggedQuotes: got %d, %v", n, err)
	}

	removed, err := s.ClearFlags(ctx, q1.ID)
	if err != nil || removed != 2 {
		t.Fatalf("ClearFlags: got %d, %v", removed, err)
	}

	n, err = s.CountFlaggedQuotes(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountFlaggedQuotes after clear: got %d, %v", n, err)
	}
}
