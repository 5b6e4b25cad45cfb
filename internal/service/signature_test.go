package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotevault/quotevault-server/internal/domain"
	domainerrors "github.com/quotevault/quotevault-server/internal/errors"
	"github.com/quotevault/quotevault-server/internal/sse"
	"github.com/quotevault/quotevault-server/internal/store"
)

func signCmd(t *testing.T, quoteID string, as domain.SignAs) domain.SignCommand {
	return domain.SignCommand{QuoteID: quoteID, As: as, Decision: domain.DecisionSign, Image: pngSignature(t)}
}

func refuseCmd(quoteID string, as domain.SignAs) domain.SignCommand {
	return domain.SignCommand{QuoteID: quoteID, As: as, Decision: domain.DecisionRefuse}
}

func TestSignatureLifecycle_SignRefuseClear(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	admin := env.admin(t, "Admin")
	a := env.member(t, "Ann")
	b := env.member(t, "Ben")

	q := env.approvedQuote(t, admin, a, b)

	sigA, inv, err := env.signatures.Submit(ctx, a, signCmd(t, q.ID, domain.SelfSign{}))
	require.NoError(t, err)
	assert.Equal(t, domain.SignatureSigned, sigA.State)
	assert.NotEmpty(t, sigA.ImageDigest)
	assert.Equal(t, domain.Invalidation{domain.CounterPendingSignatures}, inv)

	d := env.detail(t, b, q.ID)
	assert.Equal(t, domain.SignatureSigned, stateOf(d, a.UserID))
	assert.Equal(t, domain.SignaturePending, stateOf(d, b.UserID))
	assert.Equal(t, []string{b.UserID}, d.EligibleSigners)
	assert.Equal(t, 0, env.count(t, a, domain.CounterPendingSignatures))
	assert.Equal(t, 1, env.count(t, b, domain.CounterPendingSignatures))

	data, contentType, err := env.signatures.Image(ctx, b, sigA.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, pngSignature(t), data)

	sigB, _, err := env.signatures.Submit(ctx, b, refuseCmd(q.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.SignatureRefused, sigB.State)
	assert.False(t, sigB.AutoRefused)

	d = env.detail(t, admin, q.ID)
	assert.Empty(t, d.EligibleSigners)
	assert.Nil(t, d.Deadline)
	assert.Equal(t, 0, env.count(t, a, domain.CounterPendingSignatures))
	assert.Equal(t, 0, env.count(t, b, domain.CounterPendingSignatures))

	cleared, _, err := env.signatures.Clear(ctx, admin, sigA.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SignaturePending, cleared.State)
	assert.Equal(t, 1, env.count(t, a, domain.CounterPendingSignatures))

	_, _, err = env.signatures.Image(ctx, a, sigA.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound, "clearing drops the drawing")

	resigned, _, err := env.signatures.Submit(ctx, a, signCmd(t, q.ID, domain.SelfSign{}))
	require.NoError(t, err)
	assert.Equal(t, sigA.ID, resigned.ID, "the ledger row is reused")
	assert.Equal(t, domain.SignatureSigned, resigned.State)

	assert.Len(t, env.events.ofType(sse.EventSignatureResolved), 3)
	assert.Len(t, env.events.ofType(sse.EventSignatureCleared), 1)
	assert.NotEmpty(t, env.events.ofType(sse.EventCountersInvalidated))
}

func TestSignatureSubmit_UnapprovedQuote(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	author := env.member(t, "Author")

	q, _, err := env.quotes.Create(ctx, author, quoteInput(author.UserID))
	require.NoError(t, err)

	_, _, err = env.signatures.Submit(ctx, author, signCmd(t, q.ID, domain.SelfSign{}))
	assert.ErrorIs(t, err, domainerrors.ErrNotApproved)

	sigs, err := env.store.ListSignatures(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

// unapprovingStore withdraws approval of a quote just before the ledger
// write, after Submit has already seen it approved.
type unapprovingStore struct {
	store.Store
}

func (u unapprovingStore) ResolveSignature(ctx context.Context, sig *domain.Signature) (*domain.Signature, error) {
	q, err := u.GetQuote(ctx, sig.QuoteID)
	if err != nil {
		return nil, err
	}
	q.Approved = false
	q.ApprovedAt = nil
	if err := u.UpdateQuote(ctx, q, store.QuoteChange{}); err != nil {
		return nil, err
	}
	return u.Store.ResolveSignature(ctx, sig)
}

func TestSignatureSubmit_UnapprovedDuringSubmit(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	admin := env.admin(t, "Admin")
	a := env.member(t, "Ann")
	q := env.approvedQuote(t, admin, a)

	env.signatures.store = unapprovingStore{Store: env.store}

	_, _, err := env.signatures.Submit(ctx, a, signCmd(t, q.ID, domain.SelfSign{}))
	assert.ErrorIs(t, err, domainerrors.ErrNotApproved)

	_, _, err = env.signatures.Submit(ctx, admin, signCmd(t, q.ID, domain.GuestSign{Name: "Visitor"}))
	assert.ErrorIs(t, err, domainerrors.ErrNotApproved)

	sigs, err := env.store.ListSignatures(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.SignaturePending, sigs[0].State)
	assert.Empty(t, env.events.ofType(sse.EventSignatureResolved))

	entries, err := os.ReadDir(filepath.Dir(env.images.Path("x.png")))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSignatureSubmit_MissingQuote(t *testing.T) {
	env := setupServiceTest(t)
	a := env.member(t, "Ann")

	_, _, err := env.signatures.Submit(context.Background(), a, signCmd(t, "quote-missing", domain.SelfSign{}))
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestSignatureSubmit_Authorization(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	admin := env.admin(t, "Admin")
	a := env.member(t, "Ann")
	b := env.member(t, "Ben")
	outsider := env.member(t, "Olive")

	q := env.approvedQuote(t, admin, a, b)

	tests := []struct {
		name   string
		caller domain.Caller
		as     domain.SignAs
	}{
		{"outsider signs as self", outsider, domain.SelfSign{}},
		{"member signs for another", a, domain.AdminSignFor{ParticipantID: b.UserID}},
		{"member records a guest", a, domain.GuestSign{Name: "Visitor"}},
		{"admin signs for a non-participant", admin, domain.AdminSignFor{ParticipantID: outsider.UserID}},
		{"admin signs as self while not a participant", admin, domain.SelfSign{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.signatures.Submit(ctx, tt.caller, signCmd(t, q.ID, tt.as))
			assert.ErrorIs(t, err, domainerrors.ErrForbidden)
		})
	}

	d := env.detail(t, admin, q.ID)
	assert.Len(t, d.Signatures, 2)
	assert.Equal(t, []string{a.UserID, b.UserID}, d.EligibleSigners)
}

func TestSignatureSubmit_AdminSignsForParticipant(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	admin := env.admin(t, "Admin")
	a := env.member(t, "Ann")

	q := env.approvedQuote(t, admin, a)

	sig, _, err := env.signatures.Submit(ctx, admin, signCmd(t, q.ID, domain.AdminSignFor{ParticipantID: a.UserID}))
	require.NoError(t, err)
	assert.Equal(t, a.UserID, sig.UserID)
	assert.Equal(t, admin.UserID, sig.ResolvedBy)

	_, _, err = env.signatures.Submit(ctx, a, refuseCmd(q.ID, domain.SelfSign{}))
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyResolved)

	var de *domainerrors.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, map[string]string{"state": "signed"}, de.Details)
}

func TestSignatureSubmit_GuestNameConflict(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	admin := env.admin(t, "Admin")
	env.member(t, "Jane")

	q := env.approvedQuote(t, admin)

	_, _, err := env.signatures.Submit(ctx, admin, signCmd(t, q.ID, domain.GuestSign{Name: "  jane "}))
	assert.ErrorIs(t, err, domainerrors.ErrNameConflict)

	sigs, err := env.store.ListSignatures(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestSignatureSubmit_GuestRespondsOnce(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	admin := env.admin(t, "Admin")

	q := env.approvedQuote(t, admin)

	sig, _, err := env.signatures.Submit(ctx, admin, signCmd(t, q.ID, domain.GuestSign{Name: "Aunt May"}))
	require.NoError(t, err)
	assert.Equal(t, "Aunt May", sig.GuestName)
	assert.True(t, sig.IsGuest())

	_, _, err = env.signatures.Submit(ctx, admin, refuseCmd(q.ID, domain.GuestSign{Name: "aunt  MAY"}))
	assert.ErrorIs(t, err, domainerrors.ErrDuplicateGuestResponse)

	_, _, err = env.signatures.Submit(ctx, admin, signCmd(t, q.ID, domain.GuestSign{Name: "Uncle Ben"}))
	assert.NoError(t, err)
}

func TestSignatureSubmit_ImageRules(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	admin := env.admin(t, "Admin")
	a := env.member(t, "Ann")

	q := env.approvedQuote(t, admin, a)

	cmd := signCmd(t, q.ID, nil)
	cmd.Image = nil
	_, _, err := env.signatures.Submit(ctx, a, cmd)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	cmd.Image = []byte("not an image")
	_, _, err = env.signatures.Submit(ctx, a, cmd)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	refusal := refuseCmd(q.ID, nil)
	refusal.Image = pngSignature(t)
	_, _, err = env.signatures.Submit(ctx, a, refusal)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, _, err = env.signatures.Submit(ctx, a, domain.SignCommand{QuoteID: q.ID, Decision: "maybe"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	assert.Equal(t, domain.SignaturePending, stateOf(env.detail(t, a, q.ID), a.UserID))
}

func TestSignatureSubmit_ConcurrentSubmissionsOneWinner(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	admin := env.admin(t, "Admin")
	a := env.member(t, "Ann")

	q := env.approvedQuote(t, admin, a)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		resolved int
	)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var cmd domain.SignCommand
			if i%2 == 0 {
				cmd = signCmd(t, q.ID, domain.AdminSignFor{ParticipantID: a.UserID})
			} else {
				cmd = refuseCmd(q.ID, domain.AdminSignFor{ParticipantID: a.UserID})
			}
			_, _, err := env.signatures.Submit(ctx, admin, cmd)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domainerrors.ErrAlreadyResolved):
				resolved++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, resolved)

	sigs, err := env.store.ListSignatures(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.True(t, sigs[0].State.Terminal())

	// Losing signers leave no image behind.
	entries, err := os.ReadDir(filepath.Dir(env.images.Path("x.png")))
	require.NoError(t, err)
	if sigs[0].State == domain.SignatureSigned {
		assert.Len(t, entries, 1)
	} else {
		assert.Empty(t, entries)
	}
}

func TestSignatureClear_Rules(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	admin := env.admin(t, "Admin")
	a := env.member(t, "Ann")

	q := env.approvedQuote(t, admin, a)
	pending := signatureOf(env.detail(t, a, q.ID), a.UserID)

	_, _, err := env.signatures.Clear(ctx, admin, pending.ID)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	sig, _, err := env.signatures.Submit(ctx, a, refuseCmd(q.ID, nil))
	require.NoError(t, err)

	_, _, err = env.signatures.Clear(ctx, a, sig.ID)
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)

	_, _, err = env.signatures.Clear(ctx, admin, "sig-missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}
