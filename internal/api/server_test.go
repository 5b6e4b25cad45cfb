package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotevault/quotevault-server/internal/auth"
	"github.com/quotevault/quotevault-server/internal/cache"
	"github.com/quotevault/quotevault-server/internal/config"
	"github.com/quotevault/quotevault-server/internal/media/images"
	"github.com/quotevault/quotevault-server/internal/search"
	"github.com/quotevault/quotevault-server/internal/service"
	"github.com/quotevault/quotevault-server/internal/sse"
	"github.com/quotevault/quotevault-server/internal/store/sqlite"
)

// testEnvelope decodes a success envelope with typed data.
type testEnvelope[T any] struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details"`
	} `json:"error"`
}

// testServer wraps the API server with handles tests need.
type testServer struct {
	*Server
	api    humatest.TestAPI
	users  *service.UserService
	tokens *auth.TokenService
}

// setupTestServer creates a server backed by a temp-dir store. opts may
// adjust the server options before construction.
func setupTestServer(t *testing.T, opts ...func(*Options)) *testServer {
	t.Helper()

	tmpDir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	st, err := sqlite.Open(filepath.Join(tmpDir, "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	c, err := cache.New(time.Minute, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	index, err := search.NewSearchIndex(search.Options{DataPath: filepath.Join(tmpDir, "search"), Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	storage, err := images.NewStorage(tmpDir)
	require.NoError(t, err)

	key, err := auth.LoadOrGenerateKey(tmpDir)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, 15*time.Minute)
	require.NoError(t, err)

	sseManager := sse.NewManager(logger)

	settings := config.SignatureConfig{
		ExpiryWindow:  336 * time.Hour,
		Location:      time.UTC,
		SweepInterval: time.Hour,
		MaxImageBytes: 1 << 20,
	}

	counters := service.NewCounterService(st, c, sseManager, nil, logger)
	quotes := service.NewQuoteService(st, index, storage, counters, sseManager, nil, settings, logger)
	services := &Services{
		Quote:      quotes,
		Signature:  service.NewSignatureService(st, storage, images.NewProcessor(settings.MaxImageBytes, logger), counters, sseManager, nil, logger),
		Expiration: service.NewExpirationService(st, counters, sseManager, nil, settings, logger),
		Vote:       service.NewVoteService(st, counters, sseManager, nil, logger),
		Flag:       service.NewFlagService(st, counters, sseManager, nil, logger),
		Counter:    counters,
		User:       service.NewUserService(st, counters, sseManager, logger),
	}
	sseManager.SetQuoteAccessChecker(quotes.CanRead)

	options := Options{Search: index}
	for _, o := range opts {
		o(&options)
	}

	s := NewServer(st, services, tokens, sseManager, options, logger)
	t.Cleanup(s.Close)

	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.API()),
		users:  services.User,
		tokens: tokens,
	}
}

// newUser registers an active user and returns an Authorization header for it
// along with its ID.
func (ts *testServer) newUser(t *testing.T, name string, admin bool) (header, userID string) {
	t.Helper()
	u, err := ts.users.Create(context.Background(), service.NewUser{DisplayName: name, Admin: admin})
	require.NoError(t, err)
	token, err := ts.tokens.GenerateAccessToken(u)
	require.NoError(t, err)
	return "Authorization: Bearer " + token, u.ID
}

func decode[T any](t *testing.T, resp interface{ Bytes() []byte }) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(resp.Bytes(), &env))
	return env
}

// requireError asserts an error envelope with the given status and code.
func requireError(t *testing.T, code int, errCode string, resp *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, code, resp.Code, resp.Body.String())
	env := decode[json.RawMessage](t, resp.Body)
	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, errCode, env.Error.Code)
}

// createQuote posts a quote as header and returns it.
func (ts *testServer) createQuote(t *testing.T, header string, body map[string]any) QuoteMutationResponse {
	t.Helper()
	resp := ts.api.Post("/api/v1/quotes", header, body)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode[QuoteMutationResponse](t, resp.Body).Data
}

func quoteBody(participants ...string) map[string]any {
	if participants == nil {
		participants = []string{}
	}
	return map[string]any{
		"lines": []map[string]string{
			{"speaker_name": "Alice", "text": "I never said that"},
			{"speaker_name": "Bob", "text": "You said it twice"},
		},
		"participants": participants,
		"visible":      true,
	}
}

// pngSignature draws a small stroke and encodes it as PNG.
func pngSignature(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 2; x < 14; x++ {
		img.Set(x, 4, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProtectedRoutes_RequireBearerToken(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header"},
		{name: "wrong scheme", header: "Authorization: Basic dXNlcjpwYXNz"},
		{name: "garbage token", header: "Authorization: Bearer not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []any{}
			if tt.header != "" {
				args = append(args, tt.header)
			}
			resp := ts.api.Get("/api/v1/quotes", args...)
			requireError(t, http.StatusUnauthorized, "UNAUTHORIZED", resp)
		})
	}
}

func TestProtectedRoutes_PendingUserIsForbidden(t *testing.T) {
	ts := setupTestServer(t)

	u, err := ts.users.Create(context.Background(), service.NewUser{DisplayName: "Newcomer", Pending: true})
	require.NoError(t, err)
	token, err := ts.tokens.GenerateAccessToken(u)
	require.NoError(t, err)

	resp := ts.api.Get("/api/v1/counts", "Authorization: Bearer "+token)
	requireError(t, http.StatusForbidden, "FORBIDDEN", resp)
}

func TestCurrentUser(t *testing.T) {
	ts := setupTestServer(t)
	header, id := ts.newUser(t, "Grace Hopper", true)

	resp := ts.api.Get("/api/v1/users/me", header)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decode[CurrentUserResponse](t, resp.Body)
	assert.True(t, env.Success)
	assert.Equal(t, id, env.Data.ID)
	assert.Equal(t, "Grace Hopper", env.Data.Name)
	assert.True(t, env.Data.Admin)
}

func TestEventsRoute_RejectsAnonymous(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/events")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestMetricsRoute_OnlyWhenConfigured(t *testing.T) {
	plain := setupTestServer(t)
	resp := plain.api.Get("/metrics")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	withMetrics := setupTestServer(t, func(o *Options) {
		o.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		})
	})
	resp = withMetrics.api.Get("/metrics")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "# metrics\n", resp.Body.String())
}
