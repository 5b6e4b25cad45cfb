// Package store defines the persistence interface for the QuoteVault server.
package store

import (
	"context"
	"time"

	"github.com/quotevault/quotevault-server/internal/domain"
)

// Store defines the interface for all persistence operations.
// Every mutating method is atomic: it either commits fully or leaves no trace.
type Store interface {
	// Lifecycle
	Close() error
	Ping(ctx context.Context) error

	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	UserNameTaken(ctx context.Context, nameKey string) (bool, error)
	ApproveUser(ctx context.Context, id string, at time.Time) (*domain.User, error)

	// Quotes
	CreateQuote(ctx context.Context, q *domain.Quote, open []*domain.Signature) error
	GetQuote(ctx context.Context, id string) (*domain.Quote, error)
	UpdateQuote(ctx context.Context, q *domain.Quote, change QuoteChange) error
	DeleteQuote(ctx context.Context, id string) (imageRefs []string, err error)
	ListQuotes(ctx context.Context, query domain.QuoteQuery) ([]*domain.Quote, error)

	// Signatures
	ListSignatures(ctx context.Context, quoteID string) ([]*domain.Signature, error)
	GetSignature(ctx context.Context, id string) (*domain.Signature, error)
	ResolveSignature(ctx context.Context, sig *domain.Signature) (*domain.Signature, error)
	ClearSignature(ctx context.Context, id string, reopenAt time.Time) (cleared *domain.Signature, oldImageRef string, err error)
	ListPendingOpenedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Signature, error)
	RefusePending(ctx context.Context, quoteID string, ids []string, cutoff, at time.Time) (int, error)

	// Rarity votes
	ApplyVote(ctx context.Context, quoteID, userID string, choice *domain.Rarity, at time.Time) (*domain.VoteOutcome, error)
	VoteTallies(ctx context.Context, quoteID string) ([]domain.RankTally, error)
	GetVote(ctx context.Context, quoteID, userID string) (*domain.Rarity, error)

	// Flags
	AddFlag(ctx context.Context, quoteID, userID string, at time.Time) (*domain.FlagOutcome, error)
	ClearFlags(ctx context.Context, quoteID string) (int, error)

	// Counters
	CountPendingSignatures(ctx context.Context, userID string) (int, error)
	CountUnapprovedQuotes(ctx context.Context, viewer domain.Caller) (int, error)
	CountUnratedQuotes(ctx context.Context, viewer domain.Caller) (int, error)
	CountFlaggedQuotes(ctx context.Context) (int, error)
	CountPendingUsers(ctx context.Context) (int, error)
}

// QuoteChange carries the ledger side effects of a quote update.
type QuoteChange struct {
	// Open inserts pending rows for signers that have no row yet.
	Open []*domain.Signature
	// ReopenPendingAt moves the window start of every pending row when set.
	ReopenPendingAt *time.Time
}

// EventEmitter is the interface for emitting SSE events.
// Services use it to broadcast changes without depending on the SSE manager.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter creates a new no-op emitter for testing.
func NewNoopEmitter() EventEmitter { return NoopEmitter{} }
