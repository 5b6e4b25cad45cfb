package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quotevault/quotevault-server/internal/domain"
	domainerrors "github.com/quotevault/quotevault-server/internal/errors"
	"github.com/quotevault/quotevault-server/internal/id"
	"github.com/quotevault/quotevault-server/internal/normalize"
	"github.com/quotevault/quotevault-server/internal/sse"
	"github.com/quotevault/quotevault-server/internal/store"
)

var userInvalidation = domain.Invalidates(domain.CounterUnapprovedUsers)

// NewUser describes an account to register.
type NewUser struct {
	DisplayName string
	FirstName   string
	LastName    string
	Admin       bool
	// Pending registers the account awaiting admin approval.
	Pending bool
}

// UserService manages the registered identities quotes refer to.
type UserService struct {
	store    store.Store
	counters *CounterService
	events   store.EventEmitter
	logger   *slog.Logger
	now      func() time.Time
}

// NewUserService creates a new user service.
func NewUserService(st store.Store, counters *CounterService, events store.EventEmitter, logger *slog.Logger) *UserService {
	return &UserService{
		store:    st,
		counters: counters,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// Create registers a user. Display names must be unique after normalization
// so guest signatures can be told apart from registered users.
func (s *UserService) Create(ctx context.Context, in NewUser) (*domain.User, error) {
	name := normalize.DisplayName(in.DisplayName)
	if name == "" {
		return nil, domainerrors.ValidationWithDetails("display name is required",
			map[string]string{"display_name": "required"})
	}
	key := normalize.NameKey(name)
	taken, err := s.store.UserNameTaken(ctx, key)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domainerrors.ValidationWithDetails("display name is already taken",
			map[string]string{"display_name": name})
	}

	userID, err := id.Generate(id.PrefixUser)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &domain.User{
		ID:          userID,
		DisplayName: name,
		FirstName:   normalize.DisplayName(in.FirstName),
		LastName:    normalize.DisplayName(in.LastName),
		Role:        domain.RoleMember,
		Status:      domain.UserStatusActive,
		NameKey:     key,
		CreatedAt:   now,
		ApprovedAt:  &now,
	}
	if in.Admin {
		u.Role = domain.RoleAdmin
	}
	if in.Pending {
		u.Status = domain.UserStatusPending
		u.ApprovedAt = nil
	}

	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fromStore(err, "user")
	}
	if u.IsPending() {
		s.counters.Invalidate(ctx, userInvalidation)
	}

	s.logger.Info("user created", "user_id", u.ID, "role", u.Role, "status", u.Status)
	return u, nil
}

// List returns users the caller may pick as participants. Admins also see
// accounts awaiting approval.
func (s *UserService) List(ctx context.Context, caller domain.Caller) ([]*domain.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if caller.Admin {
		return users, nil
	}
	active := users[:0]
	for _, u := range users {
		if u.IsActive() {
			active = append(active, u)
		}
	}
	return active, nil
}

// Approve activates a pending account. Admin only; approving an active
// account returns it unchanged.
func (s *UserService) Approve(ctx context.Context, caller domain.Caller, userID string) (*domain.User, domain.Invalidation, error) {
	if !caller.Admin {
		return nil, nil, domainerrors.Forbidden("Admin access required")
	}

	before, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, fromStore(err, "user")
	}
	if before.IsActive() {
		return before, nil, nil
	}

	u, err := s.store.ApproveUser(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, nil, fromStore(err, "user")
	}

	s.events.Emit(sse.NewUserApprovedEvent(u))
	s.counters.Invalidate(ctx, userInvalidation)

	s.logger.Info("user approved", "user_id", u.ID, "approved_by", caller.UserID)
	return u, userInvalidation, nil
}

// Identify resolves the request identity for an authenticated user id.
// Unknown and pending accounts cannot act.
func (s *UserService) Identify(ctx context.Context, userID string) (domain.Caller, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Caller{}, domainerrors.Unauthorized("Unknown user")
	}
	if err != nil {
		return domain.Caller{}, err
	}
	if !u.IsActive() {
		return domain.Caller{}, domainerrors.Forbidden("Account is awaiting approval")
	}
	return domain.CallerFor(u), nil
}
