package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerFlagRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "flagQuote",
		Method:      http.MethodPost,
		Path:        "/api/v1/quotes/{id}/flag",
		Summary:     "Flag quote",
		Description: "Reports a quote for admin review. Flagging twice has no further effect",
		Tags:        []string{"Flags"},
		Security:    []map[string][]string{{"bearer": {}}},
		Middlewares: huma.Middlewares{s.rateLimited},
	}, s.handleFlagQuote)

	huma.Register(s.api, huma.Operation{
		OperationID: "dismissFlags",
		Method:      http.MethodDelete,
		Path:        "/api/v1/quotes/{id}/flags",
		Summary:     "Dismiss flags",
		Description: "Removes every flag on a quote after review (admin only)",
		Tags:        []string{"Flags"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDismissFlags)
}

// FlagResponse reports the flag state after a request.
type FlagResponse struct {
	Added       bool     `json:"added" doc:"False when the caller had already flagged the quote"`
	FlagCount   int      `json:"flag_count" doc:"Flags on the quote"`
	Invalidates []string `json:"invalidates" doc:"Counter categories to refetch"`
}

// FlagOutput wraps the flag response for Huma.
type FlagOutput struct {
	Body FlagResponse
}

// DismissFlagsResponse reports how many flags were removed.
type DismissFlagsResponse struct {
	Dismissed   int      `json:"dismissed" doc:"Flags removed"`
	Invalidates []string `json:"invalidates" doc:"Counter categories to refetch"`
}

// DismissFlagsOutput wraps the dismiss response for Huma.
type DismissFlagsOutput struct {
	Body DismissFlagsResponse
}

func (s *Server) handleFlagQuote(ctx context.Context, input *QuoteIDInput) (*FlagOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	outcome, inv, err := s.services.Flag.Flag(ctx, caller, input.ID)
	if err != nil {
		return nil, err
	}

	return &FlagOutput{Body: FlagResponse{
		Added:       outcome.Added,
		FlagCount:   outcome.FlagCount,
		Invalidates: invalidates(inv),
	}}, nil
}

func (s *Server) handleDismissFlags(ctx context.Context, input *QuoteIDInput) (*DismissFlagsOutput, error) {
	caller, err := s.authenticateAndRequireAdmin(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	n, inv, err := s.services.Flag.Dismiss(ctx, caller, input.ID)
	if err != nil {
		return nil, err
	}

	return &DismissFlagsOutput{Body: DismissFlagsResponse{Dismissed: n, Invalidates: invalidates(inv)}}, nil
}
