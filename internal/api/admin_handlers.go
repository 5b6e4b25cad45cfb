package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quotevault/quotevault-server/internal/domain"
)

func (s *Server) registerAdminRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "approveUser",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/users/{id}/approve",
		Summary:     "Approve user",
		Description: "Activates a pending account (admin only)",
		Tags:        []string{"Admin"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleApproveUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "sweepExpirations",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/expiration/sweep",
		Summary:     "Run expiration sweep",
		Description: "Auto-refuses every pending signature past its deadline. Safe to repeat",
		Tags:        []string{"Admin"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSweepExpirations)

	huma.Register(s.api, huma.Operation{
		OperationID: "reindexSearch",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/search/reindex",
		Summary:     "Rebuild search index",
		Description: "Re-indexes every quote for free-text search",
		Tags:        []string{"Admin"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleReindexSearch)
}

// AdminInput carries only the caller.
type AdminInput struct {
	Authorization string `header:"Authorization"`
}

// UserIDInput addresses one user.
type UserIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"User ID"`
}

// ApproveUserResponse is the approved user.
type ApproveUserResponse struct {
	User        *domain.User `json:"user"`
	Invalidates []string     `json:"invalidates" doc:"Counter categories to refetch"`
}

// ApproveUserOutput wraps the approve response for Huma.
type ApproveUserOutput struct {
	Body ApproveUserResponse
}

// SweepResponse summarizes a manual sweep.
type SweepResponse struct {
	Expired     int      `json:"expired" doc:"Signatures auto-refused by this run"`
	Quotes      int      `json:"quotes" doc:"Quotes with at least one expiry"`
	Failed      []string `json:"failed,omitempty" doc:"Quotes whose refusals could not be written"`
	Invalidates []string `json:"invalidates" doc:"Counter categories to refetch"`
}

// SweepOutput wraps the sweep response for Huma.
type SweepOutput struct {
	Body SweepResponse
}

// ReindexOutput reports how many quotes were indexed.
type ReindexOutput struct {
	Body struct {
		Indexed int `json:"indexed"`
	}
}

func (s *Server) handleApproveUser(ctx context.Context, input *UserIDInput) (*ApproveUserOutput, error) {
	caller, err := s.authenticateAndRequireAdmin(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	user, inv, err := s.services.User.Approve(ctx, caller, input.ID)
	if err != nil {
		return nil, err
	}

	return &ApproveUserOutput{Body: ApproveUserResponse{User: user, Invalidates: invalidates(inv)}}, nil
}

func (s *Server) handleSweepExpirations(ctx context.Context, input *AdminInput) (*SweepOutput, error) {
	if _, err := s.authenticateAndRequireAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}

	result, err := s.services.Expiration.Sweep(ctx)
	if err != nil {
		return nil, err
	}

	return &SweepOutput{Body: SweepResponse{
		Expired:     result.Expired,
		Quotes:      result.Quotes,
		Failed:      result.Failed,
		Invalidates: invalidates(result.Invalidation),
	}}, nil
}

func (s *Server) handleReindexSearch(ctx context.Context, input *AdminInput) (*ReindexOutput, error) {
	if _, err := s.authenticateAndRequireAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}

	n, err := s.services.Quote.Reindex(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("search index rebuilt", "quotes", n)
	out := &ReindexOutput{}
	out.Body.Indexed = n
	return out, nil
}
