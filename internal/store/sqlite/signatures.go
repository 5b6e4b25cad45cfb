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

// signatureColumns must match the scan order in scanSignature.
const signatureColumns = `s.id, s.quote_id, s.signer_key, s.user_id, s.guest_name, s.state,
	s.auto_refused, s.image_ref, s.image_digest, s.blurhash, s.resolved_by, s.opened_at, s.resolved_at`

func scanSignature(scanner interface{ Scan(dest ...any) error }) (*domain.Signature, error) {
	var (
		sig         domain.Signature
		userID      sql.NullString
		state       string
		autoRefused int
		openedAt    string
		resolvedAt  sql.NullString
	)

	err := scanner.Scan(
		&sig.ID,
		&sig.QuoteID,
		&sig.SignerKey,
		&userID,
		&sig.GuestName,
		&state,
		&autoRefused,
		&sig.ImageRef,
		&sig.ImageDigest,
		&sig.Blurhash,
		&sig.ResolvedBy,
		&openedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	sig.UserID = userID.String
	sig.State = domain.SignatureState(state)
	sig.AutoRefused = autoRefused != 0

	if sig.OpenedAt, err = parseTime(openedAt); err != nil {
		return nil, err
	}
	if sig.ResolvedAt, err = parseNullableTime(resolvedAt); err != nil {
		return nil, err
	}
	return &sig, nil
}

func querySignatures(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, query string, args ...any) ([]*domain.Signature, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sigs []*domain.Signature
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// ListSignatures returns every ledger row for a quote: registered signers
// first, then guests, each in creation order.
func (s *Store) ListSignatures(ctx context.Context, quoteID string) ([]*domain.Signature, error) {
	return querySignatures(ctx, s.db, `
		SELECT `+signatureColumns+` FROM signatures s
		WHERE s.quote_id = ?
		ORDER BY s.user_id IS NULL, s.opened_at, s.id`, quoteID)
}

// GetSignature retrieves one ledger row.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) GetSignature(ctx context.Context, id string) (*domain.Signature, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+signatureColumns+` FROM signatures s WHERE s.id = ?`, id)
	sig, err := scanSignature(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return sig, err
}

// ResolveSignature writes a terminal state for (sig.QuoteID, sig.SignerKey).
// A missing row is created; a pending row is resolved. When the row is
// already terminal nothing changes and a *store.StateConflictError carrying
// the current state is returned, so of two racing submissions exactly one wins.
// A quote that is no longer approved yields store.ErrNotApproved.
func (s *Store) ResolveSignature(ctx context.Context, sig *domain.Signature) (*domain.Signature, error) {
	var out *domain.Signature
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var approved bool
		err := tx.QueryRowContext(ctx, `SELECT approved FROM quotes WHERE id = ?`, sig.QuoteID).Scan(&approved)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check approval: %w", err)
		}
		if !approved {
			return store.ErrNotApproved
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO signatures (
				id, quote_id, signer_key, user_id, guest_name, state, auto_refused,
				image_ref, image_digest, blurhash, resolved_by, opened_at, resolved_at
			) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (quote_id, signer_key) DO UPDATE SET
				state = excluded.state,
				auto_refused = 0,
				guest_name = excluded.guest_name,
				image_ref = excluded.image_ref,
				image_digest = excluded.image_digest,
				blurhash = excluded.blurhash,
				resolved_by = excluded.resolved_by,
				resolved_at = excluded.resolved_at
			WHERE signatures.state = 'pending'`,
			sig.ID,
			sig.QuoteID,
			sig.SignerKey,
			nullString(sig.UserID),
			sig.GuestName,
			string(sig.State),
			sig.ImageRef,
			sig.ImageDigest,
			sig.Blurhash,
			sig.ResolvedBy,
			formatTime(sig.OpenedAt),
			nullTimeString(sig.ResolvedAt),
		)
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("resolve signature: %w", err)
		}
		changed, err := res.RowsAffected()
		if err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			SELECT `+signatureColumns+` FROM signatures s
			WHERE s.quote_id = ? AND s.signer_key = ?`, sig.QuoteID, sig.SignerKey)
		current, err := scanSignature(row)
		if err != nil {
			return fmt.Errorf("reload signature: %w", err)
		}
		if changed == 0 {
			return &store.StateConflictError{State: current.State}
		}
		out = current

		return touchQuote(ctx, tx, sig.QuoteID, *sig.ResolvedAt)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClearSignature returns a terminal row to pending with a fresh window
// starting at reopenAt. It returns the cleared row and the image ref it held.
func (s *Store) ClearSignature(ctx context.Context, id string, reopenAt time.Time) (*domain.Signature, string, error) {
	var (
		out    *domain.Signature
		oldRef string
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+signatureColumns+` FROM signatures s WHERE s.id = ?`, id)
		current, err := scanSignature(row)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		if current.State == domain.SignaturePending {
			return &store.StateConflictError{State: current.State}
		}
		oldRef = current.ImageRef

		if _, err := tx.ExecContext(ctx, `
			UPDATE signatures SET
				state = 'pending', auto_refused = 0, image_ref = '', image_digest = '',
				blurhash = '', resolved_by = '', resolved_at = NULL, opened_at = ?
			WHERE id = ?`, formatTime(reopenAt), id); err != nil {
			return fmt.Errorf("clear signature: %w", err)
		}

		current.State = domain.SignaturePending
		current.AutoRefused = false
		current.ImageRef, current.ImageDigest, current.Blurhash, current.ResolvedBy = "", "", "", ""
		current.ResolvedAt = nil
		current.OpenedAt = reopenAt.UTC()
		out = current

		return touchQuote(ctx, tx, current.QuoteID, reopenAt)
	})
	if err != nil {
		return nil, "", err
	}
	return out, oldRef, nil
}

// signerIsCurrent limits signature rows (aliased s) to guests and to users
// still on the quote's participant list.
const signerIsCurrent = `(s.user_id IS NULL OR EXISTS (
	SELECT 1 FROM quote_participants p WHERE p.quote_id = s.quote_id AND p.user_id = s.user_id))`

// ListPendingOpenedBefore returns pending rows of guests and current
// participants on approved quotes whose window opened at or before cutoff,
// grouped by quote.
func (s *Store) ListPendingOpenedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Signature, error) {
	return querySignatures(ctx, s.db, `
		SELECT `+signatureColumns+` FROM signatures s
		JOIN quotes q ON q.id = s.quote_id
		WHERE s.state = 'pending' AND q.approved = 1 AND s.opened_at <= ?
			AND `+signerIsCurrent+`
		ORDER BY s.quote_id, s.opened_at`, formatTime(cutoff))
}

// RefusePending auto-refuses the listed rows of one quote in a single
// transaction. Every listing condition is checked again in the write, so a
// row that was resolved, reopened after cutoff, or dropped from the
// participant list since it was listed, or whose quote lost approval, is
// skipped. The count of rows actually refused is returned.
func (s *Store) RefusePending(ctx context.Context, quoteID string, ids []string, cutoff, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var refused int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		in, args := inClause(ids)
		res, err := tx.ExecContext(ctx, `
			UPDATE signatures AS s SET state = 'refused', auto_refused = 1, resolved_at = ?
			WHERE s.quote_id = ? AND s.state = 'pending' AND s.opened_at <= ?
				AND EXISTS (SELECT 1 FROM quotes q WHERE q.id = s.quote_id AND q.approved = 1)
				AND `+signerIsCurrent+`
				AND s.id IN (`+in+`)`,
			append([]any{formatTime(at), quoteID, formatTime(cutoff)}, args...)...)
		if err != nil {
			return fmt.Errorf("refuse pending: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		refused = int(n)
		if refused == 0 {
			return nil
		}
		return touchQuote(ctx, tx, quoteID, at)
	})
	return refused, err
}

// CountPendingSignatures counts approved quotes on which userID is a
// participant with a pending signature.
func (s *Store) CountPendingSignatures(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM signatures s
		JOIN quotes q ON q.id = s.quote_id
		JOIN quote_participants p ON p.quote_id = s.quote_id AND p.user_id = s.user_id
		WHERE s.user_id = ? AND s.state = 'pending' AND q.approved = 1`, userID).Scan(&n)
	return n, err
}
