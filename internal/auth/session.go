package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedSession = errors.New("auth: malformed session cookie")

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Session is the payload stored in the session cookie. It mirrors the token
// response of the identity service.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         User   `json:"user"`
}

// ParseSession accepts the current object form and the older array form
// ["<access>", "<refresh>", ...] still found in long-lived browsers.
func ParseSession(value string) (Session, error) {
	v := strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(v, "{"):
		var s Session
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			return Session{}, fmt.Errorf("%w: %v", ErrMalformedSession, err)
		}
		if s.AccessToken == "" {
			return Session{}, fmt.Errorf("%w: access_token missing", ErrMalformedSession)
		}
		return s, nil
	case strings.HasPrefix(v, "["):
		var parts []any
		if err := json.Unmarshal([]byte(v), &parts); err != nil {
			return Session{}, fmt.Errorf("%w: %v", ErrMalformedSession, err)
		}
		if len(parts) == 0 {
			return Session{}, fmt.Errorf("%w: empty array", ErrMalformedSession)
		}
		access, _ := parts[0].(string)
		if access == "" {
			return Session{}, fmt.Errorf("%w: access_token missing", ErrMalformedSession)
		}
		s := Session{AccessToken: access}
		if len(parts) > 1 {
			s.RefreshToken, _ = parts[1].(string)
		}
		return s, nil
	default:
		return Session{}, fmt.Errorf("%w: unexpected payload", ErrMalformedSession)
	}
}

// Encode serialises the session for storage in the cookie.
func (s Session) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
