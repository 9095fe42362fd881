package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var (
	// ErrInvalidSession means the identity service definitively rejected the token.
	ErrInvalidSession = errors.New("auth: invalid session")
	// ErrIdentityUnavailable covers transport failures, timeouts and 5xx answers.
	ErrIdentityUnavailable = errors.New("auth: identity service unavailable")
	// ErrInvalidCredentials is returned by password sign-in on 400/401.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// SessionVerifier answers "is this access token a live session, and whose".
type SessionVerifier interface {
	Verify(ctx context.Context, accessToken string) (SessionClaim, error)
}

// IdentityClient talks to the external identity service over HTTP.
type IdentityClient struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	maxTries uint
}

func NewIdentityClient(baseURL, apiKey string, timeout time.Duration) *IdentityClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IdentityClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		maxTries: 2,
	}
}

// Verify resolves the user behind accessToken. Transport failures are retried
// with backoff inside the caller's deadline; a 401/403 is final.
func (c *IdentityClient) Verify(ctx context.Context, accessToken string) (SessionClaim, error) {
	user, err := retry(ctx, c.maxTries, func() (User, error) {
		var u User
		status, err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &u)
		if err != nil {
			return User{}, err
		}
		switch {
		case status == http.StatusOK && u.ID != "":
			return u, nil
		case status == http.StatusOK:
			return User{}, backoff.Permanent(fmt.Errorf("%w: user id missing", ErrInvalidSession))
		case status >= 500:
			return User{}, fmt.Errorf("%w: status %d", ErrIdentityUnavailable, status)
		default:
			return User{}, backoff.Permanent(fmt.Errorf("%w: status %d", ErrInvalidSession, status))
		}
	})
	if err != nil {
		return SessionClaim{}, err
	}
	return SessionClaim{Valid: true, UserID: user.ID}, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInWithPassword exchanges credentials for a session. No retries: a
// duplicated password grant is worse than a failed one.
func (c *IdentityClient) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	var s Session
	status, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", credentials{Email: email, Password: password}, &s)
	if err != nil {
		return Session{}, err
	}
	switch {
	case status == http.StatusOK && s.AccessToken != "":
		return s, nil
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return Session{}, ErrInvalidCredentials
	default:
		return Session{}, fmt.Errorf("%w: status %d", ErrIdentityUnavailable, status)
	}
}

// SignUp registers a user. The returned session is empty when the identity
// service requires email confirmation first.
func (c *IdentityClient) SignUp(ctx context.Context, email, password string) (Session, error) {
	var s Session
	status, err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", credentials{Email: email, Password: password}, &s)
	if err != nil {
		return Session{}, err
	}
	switch {
	case status == http.StatusOK:
		return s, nil
	case status >= 400 && status < 500:
		return Session{}, fmt.Errorf("%w: status %d", ErrInvalidCredentials, status)
	default:
		return Session{}, fmt.Errorf("%w: status %d", ErrIdentityUnavailable, status)
	}
}

// SignOut revokes the session server-side. Callers clear cookies regardless.
func (c *IdentityClient) SignOut(ctx context.Context, accessToken string) error {
	status, err := c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
	if err != nil {
		return err
	}
	if status >= 500 {
		return fmt.Errorf("%w: status %d", ErrIdentityUnavailable, status)
	}
	return nil
}

func (c *IdentityClient) do(ctx context.Context, method, path, bearer string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, backoff.Permanent(err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode response: %v", ErrIdentityUnavailable, err)
		}
	}
	return resp.StatusCode, nil
}

func retry[T any](ctx context.Context, tries uint, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second

	res, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
	if err != nil && !errors.Is(err, ErrInvalidSession) && !errors.Is(err, ErrIdentityUnavailable) {
		// context expiry surfaces as a bare context error from Retry
		err = fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	return res, err
}
