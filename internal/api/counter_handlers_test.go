package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotevault/quotevault-server/internal/domain"
	"github.com/quotevault/quotevault-server/internal/service"
)

func TestCounts_ScopedToCaller(t *testing.T) {
	ts := setupTestServer(t)
	admin, _ := ts.newUser(t, "Admin", true)
	alice, aliceID := ts.newUser(t, "Alice", false)
	bob, _ := ts.newUser(t, "Bob", false)

	_, err := ts.users.Create(context.Background(), service.NewUser{DisplayName: "Newcomer", Pending: true})
	require.NoError(t, err)

	ts.approvedQuote(t, admin, aliceID)
	ts.createQuote(t, bob, quoteBody())

	counts := func(header string) domain.Counters {
		t.Helper()
		resp := ts.api.Get("/api/v1/counts", header)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		assert.Equal(t, CacheNoStore, resp.Header().Get("Cache-Control"))
		return decode[domain.Counters](t, resp.Body).Data
	}

	adminCounts := counts(admin)
	assert.Equal(t, 0, adminCounts.PendingSignatures)
	assert.Equal(t, 1, adminCounts.UnapprovedQuotes)
	assert.Equal(t, 1, adminCounts.UnratedQuotes)
	assert.Equal(t, 1, adminCounts.UnapprovedUsers)

	aliceCounts := counts(alice)
	assert.Equal(t, 1, aliceCounts.PendingSignatures)
	assert.Equal(t, 0, aliceCounts.UnapprovedQuotes)
	assert.Equal(t, 0, aliceCounts.UnapprovedUsers)

	bobCounts := counts(bob)
	assert.Equal(t, 0, bobCounts.PendingSignatures)
	assert.Equal(t, 1, bobCounts.UnapprovedQuotes)
}

func TestCount_SingleCategory(t *testing.T) {
	ts := setupTestServer(t)
	admin, _ := ts.newUser(t, "Admin", true)
	alice, aliceID := ts.newUser(t, "Alice", false)
	ts.approvedQuote(t, admin, aliceID)

	for _, path := range []string{"pending-signatures", "pending_signatures"} {
		t.Run(path, func(t *testing.T) {
			resp := ts.api.Get("/api/v1/counts/"+path, alice)
			require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

			env := decode[CountResponse](t, resp.Body)
			assert.Equal(t, "pending_signatures", env.Data.Category)
			assert.Equal(t, 1, env.Data.Count)
		})
	}

	resp := ts.api.Get("/api/v1/counts/everything", alice)
	requireError(t, http.StatusBadRequest, "VALIDATION", resp)
}

func TestCounts_RefreshAfterSignature(t *testing.T) {
	ts := setupTestServer(t)
	admin, _ := ts.newUser(t, "Admin", true)
	alice, aliceID := ts.newUser(t, "Alice", false)
	q := ts.approvedQuote(t, admin, aliceID)

	pending := func() int {
		t.Helper()
		resp := ts.api.Get("/api/v1/counts/pending-signatures", alice)
		require.Equal(t, http.StatusOK, resp.Code)
		return decode[CountResponse](t, resp.Body).Data.Count
	}

	require.Equal(t, 1, pending())

	resp := ts.api.Post("/api/v1/signatures/refuse", alice, map[string]any{"quote_id": q.ID})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	assert.Equal(t, 0, pending())
}
