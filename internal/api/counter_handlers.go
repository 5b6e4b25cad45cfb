package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quotevault/quotevault-server/internal/domain"
)

func (s *Server) registerCounterRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getCounts",
		Method:      http.MethodGet,
		Path:        "/api/v1/counts",
		Summary:     "Get all counts",
		Description: "Returns every attention counter for the caller. Admin-only counters read zero for members",
		Tags:        []string{"Counts"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetCounts)

	huma.Register(s.api, huma.Operation{
		OperationID: "getCount",
		Method:      http.MethodGet,
		Path:        "/api/v1/counts/{category}",
		Summary:     "Get one count",
		Description: "Returns a single attention counter for the caller",
		Tags:        []string{"Counts"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetCount)
}

// CountsInput carries only the caller.
type CountsInput struct {
	Authorization string `header:"Authorization"`
}

// CountsOutput wraps all counters for Huma.
type CountsOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         *domain.Counters
}

// CountInput addresses one counter. Hyphenated names are accepted.
type CountInput struct {
	Authorization string `header:"Authorization"`
	Category      string `path:"category" enum:"pending-signatures,unapproved-quotes,unrated-quotes,flagged-quotes,unapproved-users,pending_signatures,unapproved_quotes,unrated_quotes,flagged_quotes,unapproved_users" doc:"Counter category"`
}

// CountResponse is one counter value.
type CountResponse struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// CountOutput wraps one counter for Huma.
type CountOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         CountResponse
}

func (s *Server) handleGetCounts(ctx context.Context, input *CountsInput) (*CountsOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	counts, err := s.services.Counter.All(ctx, caller)
	if err != nil {
		return nil, err
	}

	return &CountsOutput{CacheControl: CacheNoStore, Body: counts}, nil
}

func (s *Server) handleGetCount(ctx context.Context, input *CountInput) (*CountOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	cat := domain.CounterCategory(strings.ReplaceAll(input.Category, "-", "_"))
	n, err := s.services.Counter.Get(ctx, caller, cat)
	if err != nil {
		return nil, err
	}

	return &CountOutput{CacheControl: CacheNoStore, Body: CountResponse{Category: string(cat), Count: n}}, nil
}
