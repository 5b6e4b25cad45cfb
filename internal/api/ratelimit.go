package api

import (
	"net"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/quotevault/quotevault-server/internal/errors"
	"github.com/quotevault/quotevault-server/internal/ratelimit"
)

// RateLimiter is the per-key token bucket used for vote and flag endpoints.
type RateLimiter = ratelimit.KeyedRateLimiter

// NewRateLimiter creates a limiter allowing requestsPerMinute per key with
// the given burst.
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	return ratelimit.PerMinute(requestsPerMinute, burst)
}

// rateLimited is a huma operation middleware that rejects callers over their
// budget with 429 before the handler runs.
func (s *Server) rateLimited(ctx huma.Context, next func(huma.Context)) {
	if s.limiter == nil {
		next(ctx)
		return
	}

	key := s.rateLimitKey(ctx.Header("Authorization"), forwardedFor(ctx))
	if !s.limiter.Allow(key) {
		s.logger.Warn("Rate limit exceeded",
			"key", key,
			"operation", ctx.Operation().OperationID,
		)
		_ = huma.WriteErr(s.api, ctx, domainerrors.ErrRateLimited.HTTPStatus(),
			"Too many requests. Please try again later.",
			domainerrors.ErrRateLimited)
		return
	}

	next(ctx)
}

// forwardedFor returns the client address, preferring proxy headers.
func forwardedFor(ctx huma.Context) string {
	// X-Forwarded-For may contain multiple IPs, first is client.
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}
	return ctx.RemoteAddr()
}

// hostOnly strips a port from addr when present.
func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
