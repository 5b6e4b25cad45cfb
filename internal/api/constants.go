package api

// API limits and constants.
const (
	// MaxSignatureBodySize bounds signature requests, which carry a base64 image.
	MaxSignatureBodySize = 8 << 20

	// DefaultPageSize is used when a list request has no limit.
	DefaultPageSize = 50
	// MaxPageSize caps list requests.
	MaxPageSize = 200
)

// Cache-Control header values.
const (
	CachePrivateRevalidate = "private, no-cache"
	CacheNoStore           = "no-store"
)
