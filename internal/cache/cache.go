// Package cache holds short-lived derived values in an in-memory Badger
// instance. Entries expire on their own and can be dropped by key prefix.
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache wraps an in-memory Badger database.
type Cache struct {
	db     *badger.DB
	logger *slog.Logger
	ttl    time.Duration
}

// New opens an in-memory cache whose entries live for ttl.
func New(ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithMemTableSize(16 << 20).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	if logger != nil {
		logger.Info("Counter cache opened", "ttl", ttl)
	}
	return &Cache{db: db, logger: logger, ttl: ttl}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// GetInt returns the integer stored at key, or ErrMiss.
func (c *Cache) GetInt(key string) (int, error) {
	var n int
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, err := strconv.Atoi(string(val))
			if err != nil {
				return err
			}
			n = parsed
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, ErrMiss
	}
	if err != nil {
		return 0, fmt.Errorf("cache get %s: %w", key, err)
	}
	return n, nil
}

// SetInt stores n at key with the cache TTL.
func (c *Cache) SetInt(key string, n int) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), []byte(strconv.Itoa(n)))
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// DropPrefix removes every key beginning with one of the prefixes.
func (c *Cache) DropPrefix(prefixes ...string) error {
	if len(prefixes) == 0 {
		return nil
	}
	raw := make([][]byte, len(prefixes))
	for i, p := range prefixes {
		raw[i] = []byte(p)
	}
	if err := c.db.DropPrefix(raw...); err != nil {
		return fmt.Errorf("cache drop: %w", err)
	}
	return nil
}
