package gate

import (
	"net/http"

	"ledger-gate/internal/apierror"
	"ledger-gate/internal/audit"
	"ledger-gate/internal/auth"
	"ledger-gate/pkg/logger"

	"github.com/gin-gonic/gin"
)

const ginKeyUserID = "user_id"

// Middleware applies Decide to every non-static request. A valid session's
// user id is put on the request context for downstream limiters and handlers.
func (g *Gate) Middleware(rec audit.Recorder) gin.HandlerFunc {
	if rec == nil {
		rec = audit.Nop{}
	}
	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if IsExcluded(p) {
			c.Next()
			return
		}

		d := g.Decide(c.Request)
		log := logger.FromGin(c)

		if d.Err != nil {
			log.Error("gate dependency unavailable",
				"class", d.Class.String(),
				"action", d.Action.String(),
				"path", p,
				"err", d.Err,
			)
			rec.Record(c.Request.Context(), audit.Event{
				Type:      audit.EventDependencyUnavailable,
				RequestID: logger.RequestID(c),
				UserID:    d.Claim.UserID,
				IPAddress: c.ClientIP(),
				Method:    c.Request.Method,
				Path:      p,
				Reason:    d.Err.Error(),
			})
		}

		if d.Claim.Valid {
			c.Request = c.Request.WithContext(auth.WithUserID(c.Request.Context(), d.Claim.UserID))
			c.Set(ginKeyUserID, d.Claim.UserID)
		}

		switch d.Action {
		case PassThrough:
			c.Next()
		case RedirectSignIn:
			if IsAPI(p) {
				apierror.Abort(c, http.StatusUnauthorized, apierror.CodeUnauthenticated, d.Reason)
				return
			}
			redirect(c, d.Location)
		case RedirectSetup:
			if IsAPI(p) {
				apierror.Abort(c, http.StatusForbidden, apierror.CodeSetupIncomplete, d.Reason)
				return
			}
			redirect(c, d.Location)
		case RedirectDashboard:
			redirect(c, d.Location)
		}
	}
}

// redirect uses 302 for reads and 303 otherwise, so the follow-up is always a GET.
func redirect(c *gin.Context, location string) {
	code := http.StatusSeeOther
	if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
		code = http.StatusFound
	}
	c.Redirect(code, location)
	c.Abort()
}
