package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := New(ttl, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_SetGet(t *testing.T) {
	c := newTestCache(t, time.Minute)

	_, err := c.GetInt("counter/pending_signatures/u1")
	assert.True(t, errors.Is(err, ErrMiss))

	require.NoError(t, c.SetInt("counter/pending_signatures/u1", 3))
	n, err := c.GetInt("counter/pending_signatures/u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, c.SetInt("counter/pending_signatures/u1", 0))
	n, err = c.GetInt("counter/pending_signatures/u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCache_DropPrefix(t *testing.T) {
	c := newTestCache(t, time.Minute)

	require.NoError(t, c.SetInt("counter/pending_signatures/u1", 1))
	require.NoError(t, c.SetInt("counter/pending_signatures/u2", 2))
	require.NoError(t, c.SetInt("counter/unrated_quotes/u1", 5))

	require.NoError(t, c.DropPrefix("counter/pending_signatures/"))

	_, err := c.GetInt("counter/pending_signatures/u1")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = c.GetInt("counter/pending_signatures/u2")
	assert.ErrorIs(t, err, ErrMiss)

	n, err := c.GetInt("counter/unrated_quotes/u1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.NoError(t, c.DropPrefix())
}

func TestCache_Expiry(t *testing.T) {
	c := newTestCache(t, time.Second)

	require.NoError(t, c.SetInt("k", 1))
	// Badger TTLs have second granularity.
	time.Sleep(2100 * time.Millisecond)

	_, err := c.GetInt("k")
	assert.ErrorIs(t, err, ErrMiss)
}
