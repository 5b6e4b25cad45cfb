package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/quotevault/quotevault-server/internal/cache"
	"github.com/quotevault/quotevault-server/internal/config"
	"github.com/quotevault/quotevault-server/internal/domain"
	"github.com/quotevault/quotevault-server/internal/media/images"
	"github.com/quotevault/quotevault-server/internal/metrics"
	"github.com/quotevault/quotevault-server/internal/search"
	"github.com/quotevault/quotevault-server/internal/sse"
	"github.com/quotevault/quotevault-server/internal/store/sqlite"
)

// testClock is a settable time source shared by every service in a test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingEmitter keeps every emitted event for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recordingEmitter) Emit(event any) {
	evt, ok := event.(sse.Event)
	if !ok {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recordingEmitter) ofType(t sse.EventType) []sse.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sse.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	store      *sqlite.Store
	cache      *cache.Cache
	index      *search.SearchIndex
	images     *images.Storage
	events     *recordingEmitter
	clock      *testClock
	settings   config.SignatureConfig
	counters   *CounterService
	quotes     *QuoteService
	signatures *SignatureService
	expiration *ExpirationService
	votes      *VoteService
	flags      *FlagService
	users      *UserService
}

var testEpoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func setupServiceTest(t *testing.T) *testEnv {
	t.Helper()

	tmpDir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	st, err := sqlite.Open(filepath.Join(tmpDir, "test.db"), nil)
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

	settings := config.SignatureConfig{
		ExpiryWindow:  336 * time.Hour,
		Location:      time.UTC,
		SweepInterval: time.Hour,
		MaxImageBytes: 1 << 20,
	}
	events := &recordingEmitter{}
	clock := &testClock{now: testEpoch}
	m := metrics.New(prometheus.NewRegistry())

	counters := NewCounterService(st, c, events, m, logger)
	env := &testEnv{
		store:      st,
		cache:      c,
		index:      index,
		images:     storage,
		events:     events,
		clock:      clock,
		settings:   settings,
		counters:   counters,
		quotes:     NewQuoteService(st, index, storage, counters, events, m, settings, logger),
		signatures: NewSignatureService(st, storage, images.NewProcessor(settings.MaxImageBytes, logger), counters, events, m, logger),
		expiration: NewExpirationService(st, counters, events, m, settings, logger),
		votes:      NewVoteService(st, counters, events, m, logger),
		flags:      NewFlagService(st, counters, events, m, logger),
		users:      NewUserService(st, counters, events, logger),
	}
	env.quotes.now = clock.Now
	env.signatures.now = clock.Now
	env.expiration.now = clock.Now
	env.votes.now = clock.Now
	env.flags.now = clock.Now
	env.users.now = clock.Now

	return env
}

// member registers an active member and returns its identity.
func (e *testEnv) member(t *testing.T, name string) domain.Caller {
	t.Helper()
	u, err := e.users.Create(context.Background(), NewUser{DisplayName: name})
	require.NoError(t, err)
	return domain.CallerFor(u)
}

// admin registers an active admin and returns its identity.
func (e *testEnv) admin(t *testing.T, name string) domain.Caller {
	t.Helper()
	u, err := e.users.Create(context.Background(), NewUser{DisplayName: name, Admin: true})
	require.NoError(t, err)
	return domain.CallerFor(u)
}

func quoteInput(participants ...string) QuoteInput {
	return QuoteInput{
		Lines: []LineInput{
			{SpeakerName: "Alice", Text: "I never said that"},
			{SpeakerName: "Bob", Text: "You said it twice"},
		},
		Participants: participants,
		Visible:      true,
	}
}

// approvedQuote creates a visible quote approved by admin at the current clock.
func (e *testEnv) approvedQuote(t *testing.T, admin domain.Caller, participants ...domain.Caller) *domain.Quote {
	t.Helper()
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.UserID
	}
	in := quoteInput(ids...)
	in.Approved = true
	q, _, err := e.quotes.Create(context.Background(), admin, in)
	require.NoError(t, err)
	return q
}

func (e *testEnv) detail(t *testing.T, caller domain.Caller, quoteID string) *domain.QuoteDetail {
	t.Helper()
	d, err := e.quotes.Get(context.Background(), caller, quoteID)
	require.NoError(t, err)
	return d
}

func (e *testEnv) count(t *testing.T, caller domain.Caller, cat domain.CounterCategory) int {
	t.Helper()
	n, err := e.counters.Get(context.Background(), caller, cat)
	require.NoError(t, err)
	return n
}

// stateOf returns the ledger state of a registered signer, or "" if absent.
func stateOf(d *domain.QuoteDetail, userID string) domain.SignatureState {
	for _, s := range d.Signatures {
		if s.UserID == userID {
			return s.State
		}
	}
	return ""
}

func signatureOf(d *domain.QuoteDetail, userID string) *domain.Signature {
	for _, s := range d.Signatures {
		if s.UserID == userID {
			return s
		}
	}
	return nil
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
