package domain

import "time"

// Role represents the user's permission level in the system.
type Role string

const (
	// RoleAdmin may approve, redact, clear signatures and sign on behalf of others.
	RoleAdmin Role = "admin"
	// RoleMember grants standard user access.
	RoleMember Role = "member"
)

// UserStatus represents the user's account status.
type UserStatus string

const (
	// UserStatusActive indicates the user can use the system.
	UserStatusActive UserStatus = "active"
	// UserStatusPending indicates the account awaits admin approval.
	UserStatusPending UserStatus = "pending"
)

// User is a registered identity. Participants and voters are users.
type User struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Role        Role       `json:"role"`
	Status      UserStatus `json:"status"`
	// NameKey is the normalized DisplayName used for guest-name collisions.
	NameKey    string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}

// IsAdmin returns true if the user has administrative privileges.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsActive returns true if the account may act.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// IsPending returns true if the user is awaiting admin approval.
func (u *User) IsPending() bool {
	return u.Status == UserStatusPending
}

// FullName returns the user's full name, composed from first and last names.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "" && u.LastName == "":
		return u.DisplayName
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Name returns the best available name to display for the user.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.FullName()
}

// Caller is the identity a request acts under. It is resolved once per request
// and passed explicitly into every operation.
type Caller struct {
	UserID string
	Name   string
	Admin  bool
}

// CallerFor builds the request identity for an authenticated user.
func CallerFor(u *User) Caller {
	return Caller{UserID: u.ID, Name: u.Name(), Admin: u.IsAdmin()}
}
