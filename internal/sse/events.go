// Package sse streams quote lifecycle changes to connected clients as
// Server-Sent Events.
package sse

import (
	"time"

	"github.com/quotevault/quotevault-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	EventQuoteCreated EventType = "quote.created"
	EventQuoteUpdated EventType = "quote.updated"
	EventQuoteDeleted EventType = "quote.deleted"

	EventSignatureResolved EventType = "signature.resolved"
	EventSignatureCleared  EventType = "signature.cleared"
	EventSignaturesExpired EventType = "signatures.expired"

	EventVoteCast EventType = "vote.cast"

	// Flag events are only sent to admins.
	EventFlagAdded    EventType = "flag.added"
	EventFlagsCleared EventType = "flags.cleared"

	// EventUserApproved is only sent to admins.
	EventUserApproved EventType = "user.approved"

	// EventCountersInvalidated tells clients which counters to refetch.
	EventCountersInvalidated EventType = "counters.invalidated"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// Delivery filters, never sent to clients. Empty means everyone.
	UserID  string `json:"-"` // Only this user
	QuoteID string `json:"-"` // Only users who can read this quote
}

// QuoteEventData is the payload for quote create and update events.
type QuoteEventData struct {
	QuoteID  string `json:"quote_id"`
	Approved bool   `json:"approved"`
	Visible  bool   `json:"visible"`
}

// QuoteDeletedEventData is the payload for quote delete events.
type QuoteDeletedEventData struct {
	DeletedAt time.Time `json:"deleted_at"`
	QuoteID   string    `json:"quote_id"`
}

// SignatureEventData is the payload for signature resolve and clear events.
type SignatureEventData struct {
	SignatureID string                `json:"signature_id"`
	QuoteID     string                `json:"quote_id"`
	Signer      string                `json:"signer"`
	State       domain.SignatureState `json:"state"`
}

// SignaturesExpiredEventData is the payload for sweep results on one quote.
type SignaturesExpiredEventData struct {
	QuoteID string `json:"quote_id"`
	Count   int    `json:"count"`
}

// VoteEventData is the payload for vote events.
type VoteEventData struct {
	QuoteID string         `json:"quote_id"`
	Rank    *domain.Rarity `json:"rank"`
}

// FlagEventData is the payload for flag events.
type FlagEventData struct {
	QuoteID   string `json:"quote_id"`
	FlagCount int    `json:"flag_count"`
}

// UserEventData is the payload for user events.
type UserEventData struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// CountersInvalidatedEventData lists the counter categories to refetch.
type CountersInvalidatedEventData struct {
	Categories []string `json:"categories"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

func newEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now()}
}

// NewQuoteCreatedEvent creates a quote.created event visible to readers of q.
func NewQuoteCreatedEvent(q *domain.Quote) Event {
	e := newEvent(EventQuoteCreated, QuoteEventData{QuoteID: q.ID, Approved: q.Approved, Visible: q.Visible})
	e.QuoteID = q.ID
	return e
}

// NewQuoteUpdatedEvent creates a quote.updated event visible to readers of q.
func NewQuoteUpdatedEvent(q *domain.Quote) Event {
	e := newEvent(EventQuoteUpdated, QuoteEventData{QuoteID: q.ID, Approved: q.Approved, Visible: q.Visible})
	e.QuoteID = q.ID
	return e
}

// NewQuoteDeletedEvent creates a quote.deleted event. The quote no longer
// exists, so it goes to everyone.
func NewQuoteDeletedEvent(quoteID string, deletedAt time.Time) Event {
	return newEvent(EventQuoteDeleted, QuoteDeletedEventData{QuoteID: quoteID, DeletedAt: deletedAt})
}

// NewSignatureResolvedEvent creates a signature.resolved event.
func NewSignatureResolvedEvent(sig *domain.Signature) Event {
	e := newEvent(EventSignatureResolved, SignatureEventData{
		SignatureID: sig.ID,
		QuoteID:     sig.QuoteID,
		Signer:      sig.SignerKey,
		State:       sig.State,
	})
	e.QuoteID = sig.QuoteID
	return e
}

// NewSignatureClearedEvent creates a signature.cleared event.
func NewSignatureClearedEvent(sig *domain.Signature) Event {
	e := newEvent(EventSignatureCleared, SignatureEventData{
		SignatureID: sig.ID,
		QuoteID:     sig.QuoteID,
		Signer:      sig.SignerKey,
		State:       sig.State,
	})
	e.QuoteID = sig.QuoteID
	return e
}

// NewSignaturesExpiredEvent creates a signatures.expired event.
func NewSignaturesExpiredEvent(quoteID string, count int) Event {
	e := newEvent(EventSignaturesExpired, SignaturesExpiredEventData{QuoteID: quoteID, Count: count})
	e.QuoteID = quoteID
	return e
}

// NewVoteCastEvent creates a vote.cast event carrying the new rank.
func NewVoteCastEvent(quoteID string, rank *domain.Rarity) Event {
	e := newEvent(EventVoteCast, VoteEventData{QuoteID: quoteID, Rank: rank})
	e.QuoteID = quoteID
	return e
}

// NewFlagAddedEvent creates a flag.added event.
func NewFlagAddedEvent(quoteID string, count int) Event {
	return newEvent(EventFlagAdded, FlagEventData{QuoteID: quoteID, FlagCount: count})
}

// NewFlagsClearedEvent creates a flags.cleared event.
func NewFlagsClearedEvent(quoteID string) Event {
	return newEvent(EventFlagsCleared, FlagEventData{QuoteID: quoteID})
}

// NewUserApprovedEvent creates a user.approved event.
func NewUserApprovedEvent(u *domain.User) Event {
	return newEvent(EventUserApproved, UserEventData{UserID: u.ID, DisplayName: u.Name()})
}

// NewCountersInvalidatedEvent creates a counters.invalidated event.
func NewCountersInvalidatedEvent(inv domain.Invalidation) Event {
	return newEvent(EventCountersInvalidated, CountersInvalidatedEventData{Categories: inv.Strings()})
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return newEvent(EventHeartbeat, HeartbeatEventData{ServerTime: time.Now()})
}
