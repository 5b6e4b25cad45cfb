package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quotevault/quotevault-server/internal/domain"
	domainerrors "github.com/quotevault/quotevault-server/internal/errors"
)

// bearerToken extracts the token from an "Authorization: Bearer ..." value.
func bearerToken(authHeader string) (string, bool) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// authenticateRequest validates the Authorization header and resolves the
// caller identity every operation receives.
func (s *Server) authenticateRequest(ctx context.Context, authHeader string) (domain.Caller, error) {
	if authHeader == "" {
		return domain.Caller{}, huma.Error401Unauthorized("Missing authorization header")
	}

	token, ok := bearerToken(authHeader)
	if !ok {
		return domain.Caller{}, huma.Error401Unauthorized("Invalid authorization header format")
	}

	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return domain.Caller{}, huma.Error401Unauthorized("Invalid or expired token")
	}

	return s.services.User.Identify(ctx, claims.UserID)
}

// authenticateAndRequireAdmin validates the token and requires admin role.
func (s *Server) authenticateAndRequireAdmin(ctx context.Context, authHeader string) (domain.Caller, error) {
	caller, err := s.authenticateRequest(ctx, authHeader)
	if err != nil {
		return domain.Caller{}, err
	}
	if !caller.Admin {
		return domain.Caller{}, domainerrors.Forbidden("Admin access required")
	}
	return caller, nil
}

// identifyStream resolves the caller of an event stream request. Browsers
// cannot set headers on EventSource, so a token query parameter is accepted.
func (s *Server) identifyStream(r *http.Request) (domain.Caller, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			header = "Bearer " + token
		}
	}
	caller, err := s.authenticateRequest(r.Context(), header)
	if err != nil {
		return domain.Caller{}, false
	}
	return caller, true
}

// rateLimitKey identifies the client for per-user limits: the token subject
// when it verifies, otherwise the client address.
func (s *Server) rateLimitKey(authHeader, remoteAddr string) string {
	if token, ok := bearerToken(authHeader); ok {
		if claims, err := s.tokens.VerifyAccessToken(token); err == nil {
			return "user:" + claims.UserID
		}
	}
	return "ip:" + hostOnly(remoteAddr)
}
