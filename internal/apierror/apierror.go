// Package apierror holds the JSON error envelope shared by middleware and handlers.
// Bodies carry a stable code and a short message, never internal detail.
package apierror

import "github.com/gin-gonic/gin"

const (
	CodeCSRFFailed      = "csrf_validation_failed"
	CodeRateLimited     = "rate_limit_exceeded"
	CodeUnauthenticated = "unauthenticated"
	CodeSetupIncomplete = "setup_incomplete"
	CodeBadRequest      = "bad_request"
	CodeUpstream        = "upstream_unavailable"
	CodeInternal        = "internal_error"
	CodeInvalidLogin    = "invalid_credentials"
)

type Body struct {
	Error Detail `json:"error"`
}

type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func New(code, message string) Body {
	return Body{Error: Detail{Code: code, Message: message}}
}

// Abort writes the envelope and stops the handler chain.
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, New(code, message))
}
