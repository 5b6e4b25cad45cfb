package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quotevault/quotevault-server/internal/domain"
)

func (s *Server) registerVoteRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "castVote",
		Method:      http.MethodPost,
		Path:        "/api/v1/quotes/{id}/vote",
		Summary:     "Vote on rarity",
		Description: "Casts, switches or retracts the caller's rarity vote. Repeating the current vote retracts it; null clears it",
		Tags:        []string{"Votes"},
		Security:    []map[string][]string{{"bearer": {}}},
		Middlewares: huma.Middlewares{s.rateLimited},
	}, s.handleCastVote)
}

// VoteRequest is the request body for voting.
type VoteRequest struct {
	Rarity *string `json:"rarity,omitempty" nullable:"true" validate:"omitempty,rarity" doc:"Chosen tier, or null to retract"`
}

// VoteInput wraps the vote request for Huma.
type VoteInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Quote ID"`
	Body          VoteRequest
}

// VoteResponse is the caller's vote and the recomputed rank.
type VoteResponse struct {
	MyVote      *domain.Rarity     `json:"my_vote" doc:"Caller's vote after the request, null when retracted"`
	Rank        *domain.Rarity     `json:"rank" doc:"Quote rank after the request, null without votes"`
	Tallies     []domain.RankTally `json:"rank_votes" doc:"Vote count per tier"`
	Invalidates []string           `json:"invalidates" doc:"Counter categories to refetch"`
}

// VoteOutput wraps the vote response for Huma.
type VoteOutput struct {
	Body VoteResponse
}

func (s *Server) handleCastVote(ctx context.Context, input *VoteInput) (*VoteOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	var choice *domain.Rarity
	if input.Body.Rarity != nil {
		r := domain.Rarity(*input.Body.Rarity)
		choice = &r
	}

	outcome, inv, err := s.services.Vote.Cast(ctx, caller, input.ID, choice)
	if err != nil {
		return nil, err
	}

	return &VoteOutput{Body: VoteResponse{
		MyVote:      outcome.MyVote,
		Rank:        outcome.Rank,
		Tallies:     outcome.Tallies,
		Invalidates: invalidates(inv),
	}}, nil
}
