package auth

import "time"

// AccessClaims are the claims carried by a v4.local access token. Role and
// status are not embedded; they are read from the user record per request so
// approval and demotion take effect immediately.
type AccessClaims struct {
	UserID     string
	TokenID    string
	IssuedAt   time.Time
	Expiration time.Time
}
