package gate

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"ledger-gate/internal/auth"
	"ledger-gate/internal/tenant"
)

type Action int

const (
	PassThrough Action = iota
	RedirectSignIn
	RedirectSetup
	RedirectDashboard
)

func (a Action) String() string {
	switch a {
	case RedirectSignIn:
		return "redirect_sign_in"
	case RedirectSetup:
		return "redirect_setup"
	case RedirectDashboard:
		return "redirect_dashboard"
	default:
		return "pass_through"
	}
}

// User-facing redirect reasons.
const (
	ReasonSignInRequired = "Please sign in to continue."
	ReasonSessionEnded   = "Your session has expired. Please sign in again."
	ReasonSetupRequired  = "Please complete your company setup to continue."
)

// Decision is the outcome for one request. Err carries a dependency failure
// that was folded into the action and should be logged by the caller.
type Decision struct {
	Action   Action
	Class    RouteClass
	Location string
	Reason   string
	Claim    auth.SessionClaim
	Err      error
}

// SessionChecker is satisfied by *auth.Checker.
type SessionChecker interface {
	HasCredentials(r *http.Request) bool
	Check(r *http.Request) (auth.SessionClaim, error)
}

type Gate struct {
	sessions        SessionChecker
	settings        tenant.Store
	settingsTimeout time.Duration
}

func New(sessions SessionChecker, settings tenant.Store, settingsTimeout time.Duration) *Gate {
	if settingsTimeout <= 0 {
		settingsTimeout = 5 * time.Second
	}
	return &Gate{sessions: sessions, settings: settings, settingsTimeout: settingsTimeout}
}

// Decide runs classification, then the session check, then the settings
// check, stopping at the first step that settles the outcome. Public paths and
// auth pages without credentials are decided without any I/O.
func (g *Gate) Decide(r *http.Request) Decision {
	class := Classify(r.URL.Path)
	d := Decision{Action: PassThrough, Class: class}

	switch class {
	case Public:
		return d

	case AuthExempt:
		if !isAuthPage(r.URL.Path) || !g.sessions.HasCredentials(r) {
			return d
		}
		claim, err := g.sessions.Check(r)
		if err != nil {
			d.Err = dependencyErr(err)
			return d
		}
		d.Claim = claim
		d.Action = RedirectDashboard
		d.Location = DashboardPath
		return d
	}

	// Protected and SetupExempt both require a session.
	claim, err := g.sessions.Check(r)
	if err != nil {
		d.Action = RedirectSignIn
		d.Reason = ReasonSessionEnded
		if errors.Is(err, auth.ErrNoSession) {
			d.Reason = ReasonSignInRequired
		}
		d.Location = withQuery(SignInPath, "error", d.Reason)
		d.Err = dependencyErr(err)
		return d
	}
	d.Claim = claim

	// The setup page never checks setup, or a failing lookup would loop.
	if class == SetupExempt {
		return d
	}

	done, err := g.setupComplete(r.Context(), claim.UserID)
	if err != nil {
		d.Err = err
	}
	if !done {
		d.Action = RedirectSetup
		d.Reason = ReasonSetupRequired
		d.Location = withQuery(SetupPath, "message", d.Reason)
	}
	return d
}

func (g *Gate) setupComplete(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.settingsTimeout)
	defer cancel()
	return tenant.HasCompletedSetup(ctx, g.settings, userID)
}

// dependencyErr keeps only errors that mean "could not ask", dropping the
// ordinary invalid-session outcomes.
func dependencyErr(err error) error {
	if errors.Is(err, auth.ErrIdentityUnavailable) {
		return err
	}
	return nil
}

func withQuery(p, key, value string) string {
	return p + "?" + url.Values{key: {value}}.Encode()
}
