package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// DefaultLimit bounds how many ids a search returns when the caller gives no limit.
const DefaultLimit = 500

// Hit is one matching quote.
type Hit struct {
	ID    string
	Score float64
}

// Search returns quote ids matching text, best match first. An empty text
// yields no hits.
func (s *SearchIndex) Search(ctx context.Context, text string, limit int) ([]Hit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildSearchQuery(text), limit, 0, false)
	req.SortBy([]string{"-_score", "-created_at"})

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// SearchIDs is Search reduced to ids.
func (s *SearchIndex) SearchIDs(ctx context.Context, text string, limit int) ([]string, error) {
	hits, err := s.Search(ctx, text, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids, nil
}

// buildSearchQuery matches line text, speaker names and notes. Speakers
// are boosted and also matched by prefix for autocomplete.
func buildSearchQuery(text string) query.Query {
	textMatch := bleve.NewMatchQuery(text)
	textMatch.SetField("text")
	textMatch.SetBoost(2.0)

	speakerMatch := bleve.NewMatchQuery(text)
	speakerMatch.SetField("speakers")
	speakerMatch.SetBoost(3.0)

	notesMatch := bleve.NewMatchQuery(text)
	notesMatch.SetField("notes")
	notesMatch.SetBoost(0.5)

	fuzzy := bleve.NewMatchQuery(text)
	fuzzy.SetField("text")
	fuzzy.SetFuzziness(1)
	fuzzy.SetBoost(0.8)

	queries := []query.Query{textMatch, speakerMatch, notesMatch, fuzzy}

	if len(text) >= 2 && !strings.ContainsAny(text, " \t") {
		prefix := bleve.NewPrefixQuery(strings.ToLower(text))
		prefix.SetField("speakers")
		prefix.SetBoost(0.5)
		queries = append(queries, prefix)
	}

	return bleve.NewDisjunctionQuery(queries...)
}
