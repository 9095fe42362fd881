package main

import (
	"log/slog"
	"net/http"

	"ledger-gate/internal/apierror"
	"ledger-gate/internal/audit"
	"ledger-gate/internal/csrf"
	"ledger-gate/internal/gate"
	"ledger-gate/internal/httpapi"
	"ledger-gate/internal/ratelimit"
	"ledger-gate/pkg/logger"

	"github.com/gin-gonic/gin"
)

// components are built once in main and shared by every request.
type components struct {
	log      *slog.Logger
	recorder audit.Recorder
	gate     *gate.Gate
	limiter  *ratelimit.Limiter
	csrf     *csrf.Manager
	handlers httpapi.Handlers
}

// newRouter builds the engine. Order matters: request id and logger first so
// everything after can log with it, then recovery, then the gate.
func newRouter(c components, trustedProxies []string) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, err
	}
	r.Use(logger.Middleware(c.log))
	r.Use(logger.Recovery())
	r.Use(c.gate.Middleware(c.recorder))

	registerRoutes(r, c)
	return r, nil
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, c components) {
	h := c.handlers
	rl := c.limiter.Middleware
	checkCSRF := c.csrf.Middleware()

	api := r.Group("/api")

	// public
	api.GET("/health", h.Health)
	api.GET("/csrf", rl(ratelimit.ClassDefault), h.CSRFToken)

	// AUTH routes
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/signin", rl(ratelimit.ClassLogin), h.SignIn)
		authGroup.POST("/signup", rl(ratelimit.ClassSignup), h.SignUp)
		authGroup.POST("/signout", rl(ratelimit.ClassAuth), checkCSRF, h.SignOut)
	}

	// Behind the gate: session required, setup required except for /api/setup.
	protected := api.Group("")
	protected.Use(rl(ratelimit.ClassAPI), checkCSRF)
	{
		protected.POST("/setup", h.CompleteSetup)
		protected.GET("/me", httpapi.Page("me"))
	}

	// Pages are rendered elsewhere; here they only need to exist behind the gate.
	r.NoRoute(func(ctx *gin.Context) {
		// Assets are served upstream; an unmatched one is a plain 404, never a page.
		if gate.IsAPI(ctx.Request.URL.Path) || gate.IsExcluded(ctx.Request.URL.Path) {
			apierror.Abort(ctx, http.StatusNotFound, "not_found", "route not found")
			return
		}
		if ctx.Request.Method != http.MethodGet && ctx.Request.Method != http.MethodHead {
			ctx.AbortWithStatus(http.StatusMethodNotAllowed)
			return
		}
		httpapi.Page(ctx.Request.URL.Path)(ctx)
	})
}
