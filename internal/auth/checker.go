package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ledger-gate/internal/cookies"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

var ErrNoSession = errors.New("auth: no session presented")

// Checker turns a request into a SessionClaim. It reads the session cookie
// (or a bearer token for API clients) and asks the verifier under a deadline.
// Every failure yields an invalid claim: authentication fails closed.
type Checker struct {
	codec    *cookies.Codec
	verifier SessionVerifier
	timeout  time.Duration
}

func NewChecker(codec *cookies.Codec, verifier SessionVerifier, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Checker{codec: codec, verifier: verifier, timeout: timeout}
}

// HasCredentials reports, without any I/O, whether the request carries something to check.
func (c *Checker) HasCredentials(r *http.Request) bool {
	if _, ok := c.codec.Get(r, c.codec.SessionCookieName()); ok {
		return true
	}
	return bearerToken(r) != ""
}

// Check returns the claim and, for invalid claims, the reason. ErrNoSession,
// ErrMalformedSession and ErrInvalidSession are ordinary outcomes;
// ErrIdentityUnavailable means the answer could not be obtained.
func (c *Checker) Check(r *http.Request) (SessionClaim, error) {
	token, err := c.accessToken(r)
	if err != nil {
		return SessionClaim{}, err
	}

	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	claim, err := c.verifier.Verify(ctx, token)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrIdentityUnavailable) {
			err = fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
		}
		return SessionClaim{}, err
	}
	if !claim.Valid || claim.UserID == "" {
		return SessionClaim{}, ErrInvalidSession
	}
	return claim, nil
}

func (c *Checker) accessToken(r *http.Request) (string, error) {
	if raw, ok := c.codec.Get(r, c.codec.SessionCookieName()); ok {
		s, err := ParseSession(raw)
		if err != nil {
			return "", err
		}
		return s.AccessToken, nil
	}
	if tok := bearerToken(r); tok != "" {
		return tok, nil
	}
	return "", ErrNoSession
}

// AccessToken exposes the presented access token, e.g. for sign-out.
func (c *Checker) AccessToken(r *http.Request) (string, bool) {
	tok, err := c.accessToken(r)
	return tok, err == nil
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get(authorizationHeader))
	if !strings.HasPrefix(raw, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
}
