package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/quotevault/quotevault-server/internal/domain"
	"github.com/quotevault/quotevault-server/internal/store"
)

// userColumns is the ordered list of columns selected in user queries.
// Must match the scan order in scanUser.
const userColumns = `id, display_name, first_name, last_name, name_key, role, status, created_at, approved_at`

func scanUser(scanner interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var (
		u          domain.User
		role       string
		status     string
		createdAt  string
		approvedAt sql.NullString
	)

	err := scanner.Scan(
		&u.ID,
		&u.DisplayName,
		&u.FirstName,
		&u.LastName,
		&u.NameKey,
		&role,
		&status,
		&createdAt,
		&approvedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Role = domain.Role(role)
	u.Status = domain.UserStatus(status)

	u.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	u.ApprovedAt, err = parseNullableTime(approvedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user.
// Returns store.ErrAlreadyExists if the user ID already exists.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.DisplayName,
		user.FirstName,
		user.LastName,
		user.NameKey,
		string(user.Role),
		string(user.Status),
		formatTime(user.CreatedAt),
		nullTimeString(user.ApprovedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// GetUser retrieves a user by ID.
// Returns store.ErrNotFound if the user does not exist.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUsersByIDs returns the users that exist among ids, in no particular order.
func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in, args := inClause(ids)
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (`+in+`)`, args...)
}

// ListUsers returns every user ordered by display name.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY display_name COLLATE NOCASE, id`)
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UserNameTaken reports whether any registered user's display name
// normalizes to nameKey.
func (s *Store) UserNameTaken(ctx context.Context, nameKey string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE name_key = ?`, nameKey).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ApproveUser activates a pending account. Approving an active account is a no-op.
func (s *Store) ApproveUser(ctx context.Context, id string, at time.Time) (*domain.User, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET status = 'active', approved_at = ?
		WHERE id = ? AND status = 'pending'`,
		formatTime(at), id)
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// CountPendingUsers counts accounts awaiting approval.
func (s *Store) CountPendingUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE status = 'pending'`).Scan(&n)
	return n, err
}
