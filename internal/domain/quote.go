package domain

import (
	"slices"
	"time"
)

// RedactedText replaces line text for readers who may not see a redacted quote.
const RedactedText = "REDACTED"

// Line is one speaker utterance within a quote.
type Line struct {
	ID          string `json:"id"`
	Position    int    `json:"position"`
	SpeakerName string `json:"speaker_name"`
	Text        string `json:"text"`
	// UserID links the speaker to a registered user when known.
	UserID string `json:"user_id,omitempty"`
}

// Quote is a recorded conversational excerpt with its moderation state.
type Quote struct {
	ID           string   `json:"id"`
	CreatedBy    string   `json:"created_by"`
	Lines        []Line   `json:"lines"`
	Participants []string `json:"participants"`
	Visible      bool     `json:"visible"`
	Redacted     bool     `json:"redacted"`
	Approved     bool     `json:"approved"`
	// ApprovedAt is set on the transition to approved and cleared on unapproval.
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Rank       *Rarity    `json:"rank"`
	FlagCount  int        `json:"flag_count"`
	Notes      string     `json:"notes,omitempty"`
	SourceURL  string     `json:"source_url,omitempty"`
	// SourceImageRef names a screenshot or photo the quote was taken from.
	SourceImageRef string     `json:"source_image_ref,omitempty"`
	SaidOn         *time.Time `json:"said_on,omitempty"`
	// HadParticipants records whether participants were named at creation.
	HadParticipants bool      `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasParticipant reports whether userID is a participant of the quote.
func (q *Quote) HasParticipant(userID string) bool {
	return slices.Contains(q.Participants, userID)
}

// ReadableBy reports whether the caller may see the quote at all.
func (q *Quote) ReadableBy(c Caller) bool {
	if c.Admin || q.CreatedBy == c.UserID || q.HasParticipant(c.UserID) {
		return true
	}
	return q.Approved && q.Visible
}

// EditableBy reports whether the caller may change or delete the quote.
// Submitters keep control only until approval.
func (q *Quote) EditableBy(c Caller) bool {
	return c.Admin || (q.CreatedBy == c.UserID && !q.Approved)
}

// LinkedUsers returns the distinct users linked from lines, in line order.
func (q *Quote) LinkedUsers() []string {
	var out []string
	for _, l := range q.Lines {
		if l.UserID != "" && !slices.Contains(out, l.UserID) {
			out = append(out, l.UserID)
		}
	}
	return out
}

// Speakers returns the distinct speaker names in line order.
func (q *Quote) Speakers() []string {
	var out []string
	for _, l := range q.Lines {
		if !slices.Contains(out, l.SpeakerName) {
			out = append(out, l.SpeakerName)
		}
	}
	return out
}

// ViewFor returns the quote as the caller may see it. Line text of a redacted
// quote is replaced for non-admins; the receiver is never modified.
func (q *Quote) ViewFor(c Caller) *Quote {
	if !q.Redacted || c.Admin {
		return q
	}
	cp := *q
	cp.Lines = make([]Line, len(q.Lines))
	for i, l := range q.Lines {
		l.Text = RedactedText
		cp.Lines[i] = l
	}
	return &cp
}

// QuoteFilter names a list scope for ListQuotes.
type QuoteFilter string

// Supported list scopes.
const (
	FilterAll               QuoteFilter = "all"
	FilterPublic            QuoteFilter = "public"
	FilterSubmitted         QuoteFilter = "submitted"
	FilterUnapproved        QuoteFilter = "unapproved"
	FilterUnrated           QuoteFilter = "unrated"
	FilterFlagged           QuoteFilter = "flagged"
	FilterPendingSignatures QuoteFilter = "pending_signatures"
)

// Valid reports whether f is a known scope.
func (f QuoteFilter) Valid() bool {
	switch f {
	case FilterAll, FilterPublic, FilterSubmitted, FilterUnapproved, FilterUnrated, FilterFlagged, FilterPendingSignatures:
		return true
	}
	return false
}

// QuoteQuery selects quotes for a list.
type QuoteQuery struct {
	Viewer  Caller
	Filter  QuoteFilter
	Speaker string
	// IDs restricts the result to these quotes when non-nil (search hits).
	IDs    []string
	Limit  int
	Offset int
}

// QuoteDetail is a quote with everything a reader needs to act on it.
type QuoteDetail struct {
	Quote      *Quote       `json:"quote"`
	Signatures []*Signature `json:"signatures"`
	// EligibleSigners are participants who may still sign or refuse.
	EligibleSigners []string    `json:"eligible_signers"`
	Tallies         []RankTally `json:"rank_votes"`
	MyVote          *Rarity     `json:"my_vote"`
	// Deadline is the earliest expiry among pending signatures.
	Deadline *time.Time `json:"signature_deadline,omitempty"`
}
