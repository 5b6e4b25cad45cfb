package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quotevault/quotevault-server/internal/domain"
	"github.com/quotevault/quotevault-server/internal/store"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ApplyVote records a voter's choice with toggle semantics and recomputes
// the quote's rank in the same transaction, so tallies and rank never
// disagree.
func (s *Store) ApplyVote(ctx context.Context, quoteID, userID string, choice *domain.Rarity, at time.Time) (*domain.VoteOutcome, error) {
	var out domain.VoteOutcome
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var prevRank sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT rank FROM quotes WHERE id = ?`, quoteID).Scan(&prevRank)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}

		current, err := getVote(ctx, tx, quoteID, userID)
		if err != nil {
			return err
		}

		next := domain.NextVote(current, choice)
		if next == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM rarity_votes WHERE quote_id = ? AND user_id = ?`, quoteID, userID)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO rarity_votes (quote_id, user_id, rarity, cast_at) VALUES (?, ?, ?, ?)
				ON CONFLICT (quote_id, user_id) DO UPDATE SET rarity = excluded.rarity, cast_at = excluded.cast_at`,
				quoteID, userID, string(*next), formatTime(at))
		}
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("write vote: %w", err)
		}

		tallies, err := voteTallies(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		counts := make(map[domain.Rarity]int, len(tallies))
		for _, t := range tallies {
			counts[t.Rarity] = t.Count
		}

		var previous *domain.Rarity
		if prevRank.Valid && prevRank.String != "" {
			r := domain.Rarity(prevRank.String)
			previous = &r
		}
		rank := domain.ComputeRank(counts, previous)

		if _, err := tx.ExecContext(ctx, `UPDATE quotes SET rank = ?, updated_at = ? WHERE id = ?`,
			rankValue(rank), formatTime(at), quoteID); err != nil {
			return fmt.Errorf("update rank: %w", err)
		}

		out = domain.VoteOutcome{MyVote: next, Rank: rank, Tallies: tallies}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VoteTallies returns one tally per tier, in tier order, with voter names.
func (s *Store) VoteTallies(ctx context.Context, quoteID string) ([]domain.RankTally, error) {
	return voteTallies(ctx, s.db, quoteID)
}

// GetVote returns the user's current vote, or nil.
func (s *Store) GetVote(ctx context.Context, quoteID, userID string) (*domain.Rarity, error) {
	return getVote(ctx, s.db, quoteID, userID)
}

func getVote(ctx context.Context, q queryer, quoteID, userID string) (*domain.Rarity, error) {
	var rarity string
	err := q.QueryRowContext(ctx,
		`SELECT rarity FROM rarity_votes WHERE quote_id = ? AND user_id = ?`, quoteID, userID).Scan(&rarity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r := domain.Rarity(rarity)
	return &r, nil
}

func voteTallies(ctx context.Context, q queryer, quoteID string) ([]domain.RankTally, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT v.rarity, v.user_id, COALESCE(NULLIF(u.display_name, ''), u.first_name || ' ' || u.last_name)
		FROM rarity_votes v
		JOIN users u ON u.id = v.user_id
		WHERE v.quote_id = ?
		ORDER BY v.cast_at, v.user_id`, quoteID)
	if err != nil {
		return nil, fmt.Errorf("tally votes: %w", err)
	}
	defer rows.Close()

	byTier := make(map[domain.Rarity]*domain.RankTally, len(domain.RarityTiers))
	tallies := make([]domain.RankTally, len(domain.RarityTiers))
	for i, tier := range domain.RarityTiers {
		tallies[i] = domain.RankTally{Rarity: tier, Voters: []domain.Voter{}}
		byTier[tier] = &tallies[i]
	}

	for rows.Next() {
		var (
			rarity string
			voter  domain.Voter
		)
		if err := rows.Scan(&rarity, &voter.ID, &voter.Name); err != nil {
			return nil, err
		}
		t, ok := byTier[domain.Rarity(rarity)]
		if !ok {
			continue
		}
		t.Count++
		t.Voters = append(t.Voters, voter)
	}
	return tallies, rows.Err()
}

// CountUnratedQuotes counts approved quotes the viewer has not voted on,
// over the same set the unrated list filter returns: every approved quote
// for admins, the readable ones otherwise.
func (s *Store) CountUnratedQuotes(ctx context.Context, viewer domain.Caller) (int, error) {
	query := `SELECT COUNT(*) FROM quotes q
		WHERE q.approved = 1
		AND NOT EXISTS (SELECT 1 FROM rarity_votes v WHERE v.quote_id = q.id AND v.user_id = ?)`
	args := []any{viewer.UserID}
	if !viewer.Admin {
		query += `
		AND (q.visible = 1 OR q.created_by = ?
			OR EXISTS (SELECT 1 FROM quote_participants p WHERE p.quote_id = q.id AND p.user_id = ?))`
		args = append(args, viewer.UserID, viewer.UserID)
	}

	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// CountUnapprovedQuotes counts quotes awaiting approval: all of them for
// admins, the viewer's own submissions otherwise.
func (s *Store) CountUnapprovedQuotes(ctx context.Context, viewer domain.Caller) (int, error) {
	var n int
	var err error
	if viewer.Admin {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quotes WHERE approved = 0`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM quotes WHERE approved = 0 AND created_by = ?`, viewer.UserID).Scan(&n)
	}
	return n, err
}
