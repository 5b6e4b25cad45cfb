package domain

import (
	"slices"
	"time"

	"github.com/quotevault/quotevault-server/internal/normalize"
)

// SignatureState is the ledger state of one signer on one quote.
type SignatureState string

// Ledger states. Signed and refused are terminal until an admin clears them.
const (
	SignaturePending SignatureState = "pending"
	SignatureSigned  SignatureState = "signed"
	SignatureRefused SignatureState = "refused"
)

// Terminal reports whether the state accepts no further signer action.
func (s SignatureState) Terminal() bool {
	return s == SignatureSigned || s == SignatureRefused
}

// Signature is one ledger row, unique per (quote, signer).
type Signature struct {
	ID      string `json:"id"`
	QuoteID string `json:"quote_id"`
	// SignerKey is "user:<id>" for registered signers, "guest:<name key>" for guests.
	SignerKey string         `json:"-"`
	UserID    string         `json:"user_id,omitempty"`
	GuestName string         `json:"guest_name,omitempty"`
	State     SignatureState `json:"state"`
	// AutoRefused marks refusals written by expiration.
	AutoRefused bool   `json:"auto_refused"`
	ImageRef    string `json:"-"`
	ImageDigest string `json:"image_digest,omitempty"`
	Blurhash    string `json:"blurhash,omitempty"`
	// ResolvedBy is the admin who acted on the signer's behalf, if any.
	ResolvedBy string `json:"resolved_by,omitempty"`
	// OpenedAt starts the pending window.
	OpenedAt   time.Time  `json:"opened_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// IsGuest reports whether the row belongs to an unregistered signer.
func (s *Signature) IsGuest() bool {
	return s.UserID == ""
}

// UserSignerKey is the ledger key for a registered signer.
func UserSignerKey(userID string) string {
	return "user:" + userID
}

// GuestSignerKey is the ledger key for a guest; equivalent names share a key.
func GuestSignerKey(name string) string {
	return "guest:" + normalize.NameKey(name)
}

// ExpiresAt is the single authority for when a pending signature lapses:
// opened+window, rounded forward to the next midnight in loc. An instant that
// already falls on midnight is kept.
func ExpiresAt(opened time.Time, window time.Duration, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	base := opened.Add(window).In(loc)
	midnight := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, loc)
	if base.After(midnight) {
		return midnight.AddDate(0, 0, 1)
	}
	return midnight
}

// ExpiryCutoff is the latest opening instant whose window has lapsed by now:
// a pending row is due exactly when its opened_at is at or before the result.
// It agrees with ExpiresAt, since every expiry falls on a midnight in loc.
func ExpiryCutoff(now time.Time, window time.Duration, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.Add(-window).UTC()
}

// EligibleSigners returns the participants of q who have no terminal
// signature. Order follows q.Participants.
func EligibleSigners(q *Quote, sigs []*Signature) []string {
	resolved := make(map[string]bool, len(sigs))
	for _, s := range sigs {
		if !s.IsGuest() && s.State.Terminal() {
			resolved[s.UserID] = true
		}
	}
	var out []string
	for _, p := range q.Participants {
		if !resolved[p] {
			out = append(out, p)
		}
	}
	return out
}

// Current drops rows of users who are no longer participants of q. Those
// rows are kept as history but nobody can act on them.
func Current(q *Quote, sigs []*Signature) []*Signature {
	out := make([]*Signature, 0, len(sigs))
	for _, s := range sigs {
		if s.IsGuest() || q.HasParticipant(s.UserID) {
			out = append(out, s)
		}
	}
	return out
}

// Deadline returns the earliest expiry among pending rows, or nil.
func Deadline(sigs []*Signature, window time.Duration, loc *time.Location) *time.Time {
	var earliest *time.Time
	for _, s := range sigs {
		if s.State != SignaturePending {
			continue
		}
		exp := ExpiresAt(s.OpenedAt, window, loc)
		if earliest == nil || exp.Before(*earliest) {
			earliest = &exp
		}
	}
	return earliest
}

// Decision is the outcome a signer submits.
type Decision string

// Decisions.
const (
	DecisionSign   Decision = "sign"
	DecisionRefuse Decision = "refuse"
)

// State maps a decision to the terminal ledger state it produces.
func (d Decision) State() SignatureState {
	if d == DecisionRefuse {
		return SignatureRefused
	}
	return SignatureSigned
}

// SignAs identifies whose signature a submission records. It is one of
// SelfSign, AdminSignFor or GuestSign.
type SignAs interface {
	signAs()
}

// SelfSign records the caller's own signature.
type SelfSign struct{}

// AdminSignFor records a signature on behalf of a participant. Admin only.
type AdminSignFor struct {
	ParticipantID string
}

// GuestSign records a signature for an unregistered person. Admin only.
type GuestSign struct {
	Name string
}

func (SelfSign) signAs()     {}
func (AdminSignFor) signAs() {}
func (GuestSign) signAs()    {}

// SignCommand is one submission to the signature ledger.
type SignCommand struct {
	QuoteID  string
	As       SignAs
	Decision Decision
	// Image is the raw signature drawing; required when signing.
	Image []byte
}

// SignaturesByState counts rows per state.
func SignaturesByState(sigs []*Signature) map[SignatureState]int {
	out := make(map[SignatureState]int, 3)
	for _, s := range sigs {
		out[s.State]++
	}
	return out
}

// PendingFor returns the user's pending row, if any.
func PendingFor(sigs []*Signature, userID string) *Signature {
	i := slices.IndexFunc(sigs, func(s *Signature) bool {
		return s.UserID == userID && s.State == SignaturePending
	})
	if i < 0 {
		return nil
	}
	return sigs[i]
}
