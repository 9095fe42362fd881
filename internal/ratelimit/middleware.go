package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"ledger-gate/internal/apierror"
	"ledger-gate/internal/audit"
	"ledger-gate/internal/auth"
	"ledger-gate/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Middleware limits requests of the named class per client IP, and per user
// when the gate has put one on the request context. Quota headers are set on
// every checked response.
func (l *Limiter) Middleware(className string) gin.HandlerFunc {
	class := Lookup(className)
	return func(c *gin.Context) {
		uid, _ := auth.UserID(c.Request.Context())
		key := Key("rl", class.Name, c.ClientIP(), uid)

		res := l.Check(c.Request.Context(), class, key)

		h := c.Writer.Header()
		h.Set(HeaderLimit, strconv.Itoa(res.Limit))
		h.Set(HeaderRemaining, strconv.Itoa(res.Remaining))
		h.Set(HeaderReset, strconv.FormatInt(res.ResetAt.Unix(), 10))

		if res.FailedOpen {
			l.recorder.Record(c.Request.Context(), audit.Event{
				Type:      audit.EventDependencyUnavailable,
				RequestID: logger.RequestID(c),
				UserID:    uid,
				IPAddress: c.ClientIP(),
				Method:    c.Request.Method,
				Path:      c.Request.URL.Path,
				Reason:    "rate limit backend unavailable: " + class.Name,
			})
		}
		if res.Allowed {
			c.Next()
			return
		}

		retry := int(math.Ceil(res.RetryAfter.Seconds()))
		h.Set(HeaderRetryAfter, strconv.Itoa(retry))

		logger.FromGin(c).Warn("rate limit exceeded",
			"class", class.Name,
			"path", c.Request.URL.Path,
			"retry_after_s", retry,
		)
		l.recorder.Record(c.Request.Context(), audit.Event{
			Type:      audit.EventRateLimited,
			RequestID: logger.RequestID(c),
			UserID:    uid,
			IPAddress: c.ClientIP(),
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			Reason:    class.Name,
		})
		apierror.Abort(c, http.StatusTooManyRequests, apierror.CodeRateLimited, class.Message)
	}
}
