package auth

import "github.com/golang-jwt/jwt/v5"

// SessionClaim is the per-request answer from the identity layer. It is never persisted.
type SessionClaim struct {
	Valid  bool
	UserID string
}

// Claims is the access-token shape issued by the identity service.
// Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims

	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}
