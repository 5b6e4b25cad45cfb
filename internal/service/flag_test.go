package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotevault/quotevault-server/internal/domain"
	domainerrors "github.com/quotevault/quotevault-server/internal/errors"
	"github.com/quotevault/quotevault-server/internal/sse"
)

func TestFlag_AddIsIdempotent(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	admin := env.admin(t, "Admin")
	a := env.member(t, "Ann")
	b := env.member(t, "Ben")

	q := env.approvedQuote(t, admin)

	out, inv, err := env.flags.Flag(ctx, a, q.ID)
	require.NoError(t, err)
	assert.True(t, out.Added)
	assert.Equal(t, 1, out.FlagCount)
	assert.Equal(t, domain.Invalidation{domain.CounterFlaggedQuotes}, inv)

	out, inv, err = env.flags.Flag(ctx, a, q.ID)
	require.NoError(t, err)
	assert.False(t, out.Added)
	assert.Equal(t, 1, out.FlagCount)
	assert.Nil(t, inv)

	out, _, err = env.flags.Flag(ctx, b, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, out.FlagCount)

	assert.Equal(t, 1, env.count(t, admin, domain.CounterFlaggedQuotes))
	assert.Equal(t, 0, env.count(t, a, domain.CounterFlaggedQuotes), "members never see admin counters")
	assert.Len(t, env.events.ofType(sse.EventFlagAdded), 2)
}

func TestFlag_HiddenQuoteIsNotFlaggable(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	admin := env.admin(t, "Admin")
	a := env.member(t, "Ann")

	in := quoteInput(a.UserID)
	in.Visible = false
	in.Approved = true
	q, _, err := env.quotes.Create(ctx, admin, in)
	require.NoError(t, err)

	_, _, err = env.flags.Flag(ctx, a, q.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFlaggable)

	_, _, err = env.flags.Flag(ctx, a, "quote-missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	assert.Equal(t, 0, env.count(t, admin, domain.CounterFlaggedQuotes))
}

func TestFlag_Dismiss(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	admin := env.admin(t, "Admin")
	a := env.member(t, "Ann")

	q := env.approvedQuote(t, admin)
	_, _, err := env.flags.Flag(ctx, a, q.ID)
	require.NoError(t, err)
	require.Equal(t, 1, env.count(t, admin, domain.CounterFlaggedQuotes))

	_, _, err = env.flags.Dismiss(ctx, a, q.ID)
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)

	n, inv, err := env.flags.Dismiss(ctx, admin, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.Invalidation{domain.CounterFlaggedQuotes}, inv)
	assert.Equal(t, 0, env.count(t, admin, domain.CounterFlaggedQuotes))

	n, inv, err = env.flags.Dismiss(ctx, admin, q.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, inv)
	assert.Len(t, env.events.ofType(sse.EventFlagsCleared), 1)

	// A dismissed flag can be raised again.
	out, _, err := env.flags.Flag(ctx, a, q.ID)
	require.NoError(t, err)
	assert.True(t, out.Added)
}
