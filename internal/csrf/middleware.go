package csrf

import (
	"net/http"

	"ledger-gate/internal/apierror"
	"ledger-gate/internal/audit"
	"ledger-gate/internal/auth"
	"ledger-gate/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Middleware enforces the token on unsafe methods and rotates it after every
// successful validation, before the handler runs. Safe methods pass through untouched.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		res := m.Validate(c.Request)
		if !res.OK {
			uid, _ := auth.UserID(c.Request.Context())
			logger.FromGin(c).Warn("csrf validation failed",
				"reason", string(res.Reason),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
			m.recorder.Record(c.Request.Context(), audit.Event{
				Type:      audit.EventCSRFRejected,
				RequestID: logger.RequestID(c),
				UserID:    uid,
				IPAddress: c.ClientIP(),
				Method:    c.Request.Method,
				Path:      c.Request.URL.Path,
				Reason:    string(res.Reason),
			})
			apierror.Abort(c, http.StatusForbidden, apierror.CodeCSRFFailed, ErrValidationFailed.Error())
			return
		}

		// A used token must not stay valid, so a request that cannot get a
		// successor does not run.
		if _, err := m.Rotate(c.Writer, c.Request); err != nil {
			logger.FromGin(c).Error("csrf rotation failed", "err", err)
			apierror.Abort(c, http.StatusInternalServerError, apierror.CodeInternal, "internal server error")
			return
		}
		c.Next()
	}
}
