package domain

import "time"

// Flag is one user's report that a quote needs review. A user flags a quote at most once.
type Flag struct {
	QuoteID   string    `json:"quote_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FlagOutcome reports the state after a flag request.
type FlagOutcome struct {
	// Added is false when the caller had already flagged the quote.
	Added     bool `json:"added"`
	FlagCount int  `json:"flag_count"`
}
