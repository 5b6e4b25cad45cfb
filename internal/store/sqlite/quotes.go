package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quotevault/quotevault-server/internal/domain"
	"github.com/quotevault/quotevault-server/internal/store"
)

// quoteColumns is the ordered list of columns selected in quote queries.
// Must match the scan order in scanQuote.
const quoteColumns = `q.id, q.created_by, q.visible, q.redacted, q.approved, q.approved_at,
	q.rank, q.notes, q.source_url, q.source_image_ref, q.said_on, q.had_participants, q.created_at, q.updated_at,
	(SELECT COUNT(*) FROM quote_flags f WHERE f.quote_id = q.id)`

const defaultListLimit = 50

func scanQuote(scanner interface{ Scan(dest ...any) error }) (*domain.Quote, error) {
	var (
		q               domain.Quote
		visible         int
		redacted        int
		approved        int
		approvedAt      sql.NullString
		rank            sql.NullString
		saidOn          sql.NullString
		hadParticipants int
		createdAt       string
		updatedAt       string
	)

	err := scanner.Scan(
		&q.ID,
		&q.CreatedBy,
		&visible,
		&redacted,
		&approved,
		&approvedAt,
		&rank,
		&q.Notes,
		&q.SourceURL,
		&q.SourceImageRef,
		&saidOn,
		&hadParticipants,
		&createdAt,
		&updatedAt,
		&q.FlagCount,
	)
	if err != nil {
		return nil, err
	}

	q.Visible = visible != 0
	q.Redacted = redacted != 0
	q.Approved = approved != 0
	q.HadParticipants = hadParticipants != 0

	if rank.Valid && rank.String != "" {
		r := domain.Rarity(rank.String)
		q.Rank = &r
	}

	if q.ApprovedAt, err = parseNullableTime(approvedAt); err != nil {
		return nil, err
	}
	if q.SaidOn, err = parseNullableTime(saidOn); err != nil {
		return nil, err
	}
	if q.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if q.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &q, nil
}

func rankValue(r *domain.Rarity) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*r), Valid: true}
}

// CreateQuote inserts a quote with its lines, participants and any pending
// signature rows in one transaction.
func (s *Store) CreateQuote(ctx context.Context, q *domain.Quote, open []*domain.Signature) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO quotes (
				id, created_by, visible, redacted, approved, approved_at, rank,
				notes, source_url, source_image_ref, said_on, had_participants, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID,
			q.CreatedBy,
			boolToInt(q.Visible),
			boolToInt(q.Redacted),
			boolToInt(q.Approved),
			nullTimeString(q.ApprovedAt),
			rankValue(q.Rank),
			q.Notes,
			q.SourceURL,
			q.SourceImageRef,
			nullTimeString(q.SaidOn),
			boolToInt(q.HadParticipants),
			formatTime(q.CreatedAt),
			formatTime(q.UpdatedAt),
		)
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return store.ErrInvalidInput.WithMessage("unknown creator")
		}
		if err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}

		if err := replaceLines(ctx, tx, q); err != nil {
			return err
		}
		if err := replaceParticipants(ctx, tx, q); err != nil {
			return err
		}
		return insertPending(ctx, tx, open)
	})
}

// GetQuote retrieves a quote with its lines and participants.
// Returns store.ErrNotFound if the quote does not exist.
func (s *Store) GetQuote(ctx context.Context, id string) (*domain.Quote, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quotes q WHERE q.id = ?`, id)
	q, err := scanQuote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, []*domain.Quote{q}); err != nil {
		return nil, err
	}
	return q, nil
}

// UpdateQuote replaces the quote's fields, lines and participants. Signature
// rows of removed participants stay as history; queries that act on pending
// rows only see current participants.
func (s *Store) UpdateQuote(ctx context.Context, q *domain.Quote, change store.QuoteChange) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE quotes SET
				visible = ?, redacted = ?, approved = ?, approved_at = ?,
				notes = ?, source_url = ?, source_image_ref = ?, said_on = ?, updated_at = ?
			WHERE id = ?`,
			boolToInt(q.Visible),
			boolToInt(q.Redacted),
			boolToInt(q.Approved),
			nullTimeString(q.ApprovedAt),
			q.Notes,
			q.SourceURL,
			q.SourceImageRef,
			nullTimeString(q.SaidOn),
			formatTime(q.UpdatedAt),
			q.ID,
		)
		if err != nil {
			return fmt.Errorf("update quote: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}

		if err := replaceLines(ctx, tx, q); err != nil {
			return err
		}
		if err := replaceParticipants(ctx, tx, q); err != nil {
			return err
		}

		if change.ReopenPendingAt != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE signatures SET opened_at = ? WHERE quote_id = ? AND state = 'pending'`,
				formatTime(*change.ReopenPendingAt), q.ID); err != nil {
				return fmt.Errorf("reopen pending: %w", err)
			}
		}

		return insertPending(ctx, tx, change.Open)
	})
}

// DeleteQuote removes a quote; lines, participants, signatures, votes and
// flags go with it through ON DELETE CASCADE. It returns the image refs the
// deleted signatures held so the caller can remove the files.
func (s *Store) DeleteQuote(ctx context.Context, id string) ([]string, error) {
	var refs []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT image_ref FROM signatures WHERE quote_id = ? AND image_ref != ''`, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var ref string
			if err := rows.Scan(&ref); err != nil {
				rows.Close()
				return err
			}
			refs = append(refs, ref)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM quotes WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete quote: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// ListQuotes returns quotes matching query, newest first. Non-admin viewers
// only ever see quotes they may read.
func (s *Store) ListQuotes(ctx context.Context, query domain.QuoteQuery) ([]*domain.Quote, error) {
	if query.IDs != nil && len(query.IDs) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	viewer := query.Viewer

	if !viewer.Admin {
		where = append(where, `((q.approved = 1 AND q.visible = 1) OR q.created_by = ?
			OR EXISTS (SELECT 1 FROM quote_participants p WHERE p.quote_id = q.id AND p.user_id = ?))`)
		args = append(args, viewer.UserID, viewer.UserID)
	}

	switch query.Filter {
	case domain.FilterPublic:
		where = append(where, `q.approved = 1 AND q.visible = 1`)
	case domain.FilterSubmitted:
		where = append(where, `q.created_by = ?`)
		args = append(args, viewer.UserID)
	case domain.FilterUnapproved:
		where = append(where, `q.approved = 0`)
		if !viewer.Admin {
			where = append(where, `q.created_by = ?`)
			args = append(args, viewer.UserID)
		}
	case domain.FilterUnrated:
		where = append(where, `q.approved = 1
			AND NOT EXISTS (SELECT 1 FROM rarity_votes v WHERE v.quote_id = q.id AND v.user_id = ?)`)
		args = append(args, viewer.UserID)
	case domain.FilterFlagged:
		where = append(where, `EXISTS (SELECT 1 FROM quote_flags f WHERE f.quote_id = q.id)`)
	case domain.FilterPendingSignatures:
		where = append(where, `q.approved = 1 AND EXISTS (
			SELECT 1 FROM signatures s
			JOIN quote_participants p ON p.quote_id = s.quote_id AND p.user_id = s.user_id
			WHERE s.quote_id = q.id AND s.user_id = ? AND s.state = 'pending')`)
		args = append(args, viewer.UserID)
	}

	if query.Speaker != "" {
		where = append(where, `EXISTS (SELECT 1 FROM quote_lines l
			WHERE l.quote_id = q.id AND l.speaker_name = ? COLLATE NOCASE)`)
		args = append(args, query.Speaker)
	}

	if query.IDs != nil {
		in, ids := inClause(query.IDs)
		where = append(where, `q.id IN (`+in+`)`)
		args = append(args, ids...)
	}

	sqlQuery := `SELECT ` + quoteColumns + ` FROM quotes q`
	if len(where) > 0 {
		sqlQuery += ` WHERE ` + strings.Join(where, ` AND `)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	sqlQuery += ` ORDER BY q.created_at DESC, q.id LIMIT ? OFFSET ?`
	args = append(args, limit, max(query.Offset, 0))

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	var quotes []*domain.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadChildren(ctx, quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

// loadChildren fills Lines and Participants for quotes with two queries.
func (s *Store) loadChildren(ctx context.Context, quotes []*domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Quote, len(quotes))
	ids := make([]string, len(quotes))
	for i, q := range quotes {
		byID[q.ID] = q
		ids[i] = q.ID
		q.Lines = nil
		q.Participants = nil
	}
	in, args := inClause(ids)

	lineRows, err := s.db.QueryContext(ctx, `
		SELECT quote_id, id, position, speaker_name, text, user_id FROM quote_lines
		WHERE quote_id IN (`+in+`) ORDER BY quote_id, position`, args...)
	if err != nil {
		return fmt.Errorf("load lines: %w", err)
	}
	for lineRows.Next() {
		var (
			quoteID string
			userID  sql.NullString
			l       domain.Line
		)
		if err := lineRows.Scan(&quoteID, &l.ID, &l.Position, &l.SpeakerName, &l.Text, &userID); err != nil {
			lineRows.Close()
			return err
		}
		l.UserID = userID.String
		byID[quoteID].Lines = append(byID[quoteID].Lines, l)
	}
	lineRows.Close()
	if err := lineRows.Err(); err != nil {
		return err
	}

	partRows, err := s.db.QueryContext(ctx, `
		SELECT quote_id, user_id FROM quote_participants
		WHERE quote_id IN (`+in+`) ORDER BY quote_id, position`, args...)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	defer partRows.Close()
	for partRows.Next() {
		var quoteID, userID string
		if err := partRows.Scan(&quoteID, &userID); err != nil {
			return err
		}
		byID[quoteID].Participants = append(byID[quoteID].Participants, userID)
	}
	return partRows.Err()
}

func replaceLines(ctx context.Context, tx *sql.Tx, q *domain.Quote) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM quote_lines WHERE quote_id = ?`, q.ID); err != nil {
		return fmt.Errorf("clear lines: %w", err)
	}
	for i, l := range q.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO quote_lines (id, quote_id, position, speaker_name, text, user_id)
			VALUES (?, ?, ?, ?, ?, ?)`,
			l.ID, q.ID, i, l.SpeakerName, l.Text, nullString(l.UserID))
		if isForeignKeyViolation(err) {
			return store.ErrInvalidInput.WithMessage("unknown line user " + l.UserID)
		}
		if err != nil {
			return fmt.Errorf("insert line %d: %w", i, err)
		}
	}
	return nil
}

func replaceParticipants(ctx context.Context, tx *sql.Tx, q *domain.Quote) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM quote_participants WHERE quote_id = ?`, q.ID); err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}
	for i, userID := range q.Participants {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO quote_participants (quote_id, user_id, position) VALUES (?, ?, ?)`,
			q.ID, userID, i)
		if isForeignKeyViolation(err) {
			return store.ErrInvalidInput.WithMessage("unknown participant " + userID)
		}
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return nil
}

// insertPending adds pending rows. An existing pending row for the same
// signer, left behind when the participant was removed earlier, gets a fresh
// window; terminal rows are untouched.
func insertPending(ctx context.Context, tx *sql.Tx, sigs []*domain.Signature) error {
	for _, sig := range sigs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO signatures (id, quote_id, signer_key, user_id, guest_name, state, opened_at)
			VALUES (?, ?, ?, ?, ?, 'pending', ?)
			ON CONFLICT (quote_id, signer_key) DO UPDATE SET opened_at = excluded.opened_at
			WHERE signatures.state = 'pending'`,
			sig.ID, sig.QuoteID, sig.SignerKey, nullString(sig.UserID), sig.GuestName, formatTime(sig.OpenedAt))
		if err != nil {
			return fmt.Errorf("open signature: %w", err)
		}
	}
	return nil
}

// touchQuote bumps updated_at inside a transaction.
func touchQuote(ctx context.Context, tx *sql.Tx, quoteID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE quotes SET updated_at = ? WHERE id = ?`, formatTime(at), quoteID)
	return err
}
