// Package search provides full-text search over quotes using Bleve.
package search

import (
	"strings"

	"github.com/quotevault/quotevault-server/internal/domain"
)

// QuoteDocument is the indexed form of a quote.
type QuoteDocument struct {
	ID        string
	Speakers  []string
	Text      string
	Notes     string
	CreatedAt int64 // Unix millis
}

// NewQuoteDocument builds the document for q. Redacted quotes are indexed by
// speaker only so their text cannot be recovered through search.
func NewQuoteDocument(q *domain.Quote) *QuoteDocument {
	doc := &QuoteDocument{
		ID:        q.ID,
		Speakers:  q.Speakers(),
		CreatedAt: q.CreatedAt.UnixMilli(),
	}
	if q.Redacted {
		return doc
	}

	lines := make([]string, 0, len(q.Lines))
	for _, l := range q.Lines {
		lines = append(lines, l.Text)
	}
	doc.Text = strings.Join(lines, "\n")
	doc.Notes = q.Notes
	return doc
}

// ToMap converts the document to a map whose keys match the index mapping.
func (d *QuoteDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":         d.ID,
		"speakers":   d.Speakers,
		"created_at": d.CreatedAt,
	}
	if d.Text != "" {
		m["text"] = d.Text
	}
	if d.Notes != "" {
		m["notes"] = d.Notes
	}
	return m
}
