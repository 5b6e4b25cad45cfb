package domain

import "slices"

// CounterCategory names one attention counter.
type CounterCategory string

// Counter categories. Flagged quotes and unapproved users are admin-only.
const (
	CounterPendingSignatures CounterCategory = "pending_signatures"
	CounterUnapprovedQuotes  CounterCategory = "unapproved_quotes"
	CounterUnratedQuotes     CounterCategory = "unrated_quotes"
	CounterFlaggedQuotes     CounterCategory = "flagged_quotes"
	CounterUnapprovedUsers   CounterCategory = "unapproved_users"
)

// AllCounters lists every category.
var AllCounters = []CounterCategory{
	CounterPendingSignatures,
	CounterUnapprovedQuotes,
	CounterUnratedQuotes,
	CounterFlaggedQuotes,
	CounterUnapprovedUsers,
}

// AdminOnly reports whether non-admins always read zero for the category.
func (c CounterCategory) AdminOnly() bool {
	return c == CounterFlaggedQuotes || c == CounterUnapprovedUsers
}

// Valid reports whether c is a known category.
func (c CounterCategory) Valid() bool {
	return slices.Contains(AllCounters, c)
}

// Counters is the projection for one caller.
type Counters struct {
	PendingSignatures int `json:"pending_signatures"`
	UnapprovedQuotes  int `json:"unapproved_quotes"`
	UnratedQuotes     int `json:"unrated_quotes"`
	FlaggedQuotes     int `json:"flagged_quotes"`
	UnapprovedUsers   int `json:"unapproved_users"`
}

// Set stores n under category c.
func (cs *Counters) Set(c CounterCategory, n int) {
	switch c {
	case CounterPendingSignatures:
		cs.PendingSignatures = n
	case CounterUnapprovedQuotes:
		cs.UnapprovedQuotes = n
	case CounterUnratedQuotes:
		cs.UnratedQuotes = n
	case CounterFlaggedQuotes:
		cs.FlaggedQuotes = n
	case CounterUnapprovedUsers:
		cs.UnapprovedUsers = n
	}
}

// Invalidation is the set of counter categories a mutation may have changed.
type Invalidation []CounterCategory

// Invalidates builds an Invalidation without duplicates.
func Invalidates(cats ...CounterCategory) Invalidation {
	var out Invalidation
	for _, c := range cats {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// Merge returns the union of two invalidations.
func (inv Invalidation) Merge(other Invalidation) Invalidation {
	return Invalidates(append(slices.Clone(inv), other...)...)
}

// Strings returns the category names.
func (inv Invalidation) Strings() []string {
	out := make([]string, len(inv))
	for i, c := range inv {
		out[i] = string(c)
	}
	return out
}
