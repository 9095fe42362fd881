package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"ledger-gate/internal/apierror"
	"ledger-gate/internal/auth"
	"ledger-gate/internal/cookies"
	"ledger-gate/internal/csrf"
	"ledger-gate/internal/tenant"
	"ledger-gate/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

// IdentityProvider is the part of the identity service the sign-in flow needs.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (auth.Session, error)
	SignUp(ctx context.Context, email, password string) (auth.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// HealthCheck reports one dependency's reachability.
type HealthCheck func(ctx context.Context) error

type Handlers struct {
	Identity IdentityProvider
	Sessions *auth.Checker
	Cookies  *cookies.Codec
	CSRF     *csrf.Manager
	Settings tenant.Store

	IdentityTimeout time.Duration
	SettingsTimeout time.Duration

	// Checks maps a dependency name to its health check. Optional dependencies
	// that are not configured are simply absent.
	Checks map[string]HealthCheck
}

const (
	sessionPurpose   = "auth-token"
	sessionMaxAge    = 7 * 24 * time.Hour
	minPasswordChars = 8
)

// --- Health ---

func (h Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.Checks))
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			logger.FromGin(c).Warn("health check failed", "dependency", name, "err", err)
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": checks})
}

// --- CSRF ---

// CSRFToken hands the current token to client code, issuing one if needed.
func (h Handlers) CSRFToken(c *gin.Context) {
	tok, err := h.CSRF.GetOrCreate(c.Writer, c.Request)
	if err != nil {
		logger.FromGin(c).Error("csrf issue failed", "err", err)
		apierror.Abort(c, http.StatusInternalServerError, apierror.CodeInternal, "internal server error")
		return
	}
	c.Header(csrf.HeaderName, tok)
	c.JSON(http.StatusOK, gin.H{"csrf_token": tok})
}

// --- Auth ---

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r credentialsRequest) validate() (credentialsRequest, string) {
	r.Email = strings.TrimSpace(strings.ToLower(r.Email))
	if r.Email == "" || r.Password == "" {
		return r, "email and password required"
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return r, "invalid email address"
	}
	return r, ""
}

// SignIn exchanges credentials for a session and stores it in the session cookie.
func (h Handlers) SignIn(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, http.StatusBadRequest, apierror.CodeBadRequest, "invalid json")
		return
	}
	req, msg := req.validate()
	if msg != "" {
		apierror.Abort(c, http.StatusBadRequest, apierror.CodeBadRequest, msg)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.IdentityTimeout)
	defer cancel()

	s, err := h.Identity.SignInWithPassword(ctx, req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		apierror.Abort(c, http.StatusUnauthorized, apierror.CodeInvalidLogin, "invalid email or password")
		return
	case err != nil:
		logger.FromGin(c).Error("sign-in failed", "err", err)
		apierror.Abort(c, http.StatusBadGateway, apierror.CodeUpstream, "sign-in is temporarily unavailable")
		return
	}

	if err := h.startSession(c, s); err != nil {
		logger.FromGin(c).Error("session cookie write failed", "err", err)
		apierror.Abort(c, http.StatusInternalServerError, apierror.CodeInternal, "internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": s.User})
}

// SignUp registers a user. When the identity service requires email
// confirmation no session is started.
func (h Handlers) SignUp(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, http.StatusBadRequest, apierror.CodeBadRequest, "invalid json")
		return
	}
	req, msg := req.validate()
	if msg == "" && len(req.Password) < minPasswordChars {
		msg = "password must be at least 8 characters"
	}
	if msg != "" {
		apierror.Abort(c, http.StatusBadRequest, apierror.CodeBadRequest, msg)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.IdentityTimeout)
	defer cancel()

	s, err := h.Identity.SignUp(ctx, req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		apierror.Abort(c, http.StatusBadRequest, apierror.CodeBadRequest, "sign-up was rejected")
		return
	case err != nil:
		logger.FromGin(c).Error("sign-up failed", "err", err)
		apierror.Abort(c, http.StatusBadGateway, apierror.CodeUpstream, "sign-up is temporarily unavailable")
		return
	}

	if s.AccessToken == "" {
		c.JSON(http.StatusOK, gin.H{"confirmation_required": true})
		return
	}
	if err := h.startSession(c, s); err != nil {
		logger.FromGin(c).Error("session cookie write failed", "err", err)
		apierror.Abort(c, http.StatusInternalServerError, apierror.CodeInternal, "internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": s.User, "confirmation_required": false})
}

// SignOut revokes the session upstream when possible and always clears the
// local cookies.
func (h Handlers) SignOut(c *gin.Context) {
	if tok, ok := h.Sessions.AccessToken(c.Request); ok {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.IdentityTimeout)
		defer cancel()
		if err := h.Identity.SignOut(ctx, tok); err != nil {
			logger.FromGin(c).Warn("upstream sign-out failed", "err", err)
		}
	}

	h.Cookies.Remove(c.Writer, c.Request, h.Cookies.SessionCookieName(), cookies.Options{HTTPOnly: true})
	h.Cookies.RemoveStale(c.Writer, c.Request, sessionPurpose)
	h.CSRF.Clear(c.Writer, c.Request)
	c.JSON(http.StatusOK, gin.H{"status": "signed_out"})
}

// startSession replaces leftover session cookies from other projects, writes
// the new one and rotates the CSRF token for the new identity.
func (h Handlers) startSession(c *gin.Context, s auth.Session) error {
	raw, err := s.Encode()
	if err != nil {
		return err
	}
	if removed := h.Cookies.RemoveStale(c.Writer, c.Request, sessionPurpose); len(removed) > 0 {
		logger.FromGin(c).Info("removed stale session cookies", "cookies", removed)
	}
	h.Cookies.Set(c.Writer, c.Request, h.Cookies.SessionCookieName(), cookies.Encode(raw, cookies.EncodingBase64), cookies.Options{
		HTTPOnly: true,
		MaxAge:   int(sessionMaxAge.Seconds()),
	})
	_, err = h.CSRF.Rotate(c.Writer, c.Request)
	return err
}

// --- Setup ---

type setupRequest struct {
	CompanyName string `json:"company_name"`
	Currency    string `json:"currency"`
}

// CompleteSetup stores the tenant's settings row, which marks onboarding done.
func (h Handlers) CompleteSetup(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		apierror.Abort(c, http.StatusUnauthorized, apierror.CodeUnauthenticated, "sign-in required")
		return
	}
	var req setupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, http.StatusBadRequest, apierror.CodeBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.SettingsTimeout)
	defer cancel()

	s, err := h.Settings.Save(ctx, tenant.Settings{
		UserID:      userID,
		CompanyName: req.CompanyName,
		Currency:    req.Currency,
	})
	switch {
	case errors.Is(err, tenant.ErrInvalidInput):
		apierror.Abort(c, http.StatusBadRequest, apierror.CodeBadRequest, "company_name and a 3-letter currency are required")
		return
	case err != nil:
		logger.FromGin(c).Error("settings save failed", "err", err)
		apierror.Abort(c, http.StatusServiceUnavailable, apierror.CodeUpstream, "setup is temporarily unavailable")
		return
	}
	c.JSON(http.StatusOK, s)
}

// --- Pages ---

// Page is a placeholder for application pages behind the gate.
func Page(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, _ := auth.UserID(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"page": name, "user_id": uid})
	}
}
