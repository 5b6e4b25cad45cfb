package api

import (
	"github.com/quotevault/quotevault-server/internal/service"
)

// Services groups all business logic services used by the API server.
// This reduces the parameter count for NewServer and improves testability.
type Services struct {
	Quote      *service.QuoteService
	Signature  *service.SignatureService
	Expiration *service.ExpirationService // Manual sweeps
	Vote       *service.VoteService
	Flag       *service.FlagService
	Counter    *service.CounterService
	User       *service.UserService
}
