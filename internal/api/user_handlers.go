package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quotevault/quotevault-server/internal/domain"
)

func (s *Server) registerUserRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listUsers",
		Method:      http.MethodGet,
		Path:        "/api/v1/users",
		Summary:     "List users",
		Description: "Lists active users for participant and signer pickers. Admins also see pending accounts",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListUsers)

	huma.Register(s.api, huma.Operation{
		OperationID: "getCurrentUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/me",
		Summary:     "Get current user",
		Description: "Returns the identity the bearer token resolves to",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetCurrentUser)
}

// ListUsersInput carries only the caller.
type ListUsersInput struct {
	Authorization string `header:"Authorization"`
}

// ListUsersOutput wraps the user list for Huma.
type ListUsersOutput struct {
	Body struct {
		Users []*domain.User `json:"users"`
	}
}

// CurrentUserResponse describes the caller.
type CurrentUserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// CurrentUserOutput wraps the current user for Huma.
type CurrentUserOutput struct {
	Body CurrentUserResponse
}

func (s *Server) handleListUsers(ctx context.Context, input *ListUsersInput) (*ListUsersOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	users, err := s.services.User.List(ctx, caller)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*domain.User{}
	}

	out := &ListUsersOutput{}
	out.Body.Users = users
	return out, nil
}

func (s *Server) handleGetCurrentUser(ctx context.Context, input *ListUsersInput) (*CurrentUserOutput, error) {
	caller, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	return &CurrentUserOutput{Body: CurrentUserResponse{ID: caller.UserID, Name: caller.Name, Admin: caller.Admin}}, nil
}
