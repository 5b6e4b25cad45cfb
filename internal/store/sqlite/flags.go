package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quotevault/quotevault-server/internal/domain"
	"github.com/quotevault/quotevault-server/internal/store"
)

// AddFlag records that userID flagged quoteID. Repeat flags by the same user
// are absorbed: Added is false and the count is unchanged.
func (s *Store) AddFlag(ctx context.Context, quoteID, userID string, at time.Time) (*domain.FlagOutcome, error) {
	var out domain.FlagOutcome
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO quote_flags (quote_id, user_id, created_at) VALUES (?, ?, ?)
			ON CONFLICT (quote_id, user_id) DO NOTHING`,
			quoteID, userID, formatTime(at))
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("insert flag: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		out.Added = n > 0

		return tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM quote_flags WHERE quote_id = ?`, quoteID).Scan(&out.FlagCount)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearFlags removes every flag on a quote after review and returns how many were removed.
func (s *Store) ClearFlags(ctx context.Context, quoteID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quote_flags WHERE quote_id = ?`, quoteID)
	if err != nil {
		return 0, fmt.Errorf("clear flags: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountFlaggedQuotes counts quotes with at least one flag.
func (s *Store) CountFlaggedQuotes(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT quote_id) FROM quote_flags`).Scan(&n)
	return n, err
}
