// Package gate is the edge chokepoint deciding, per request, whether to pass
// through or redirect to sign-in, setup or the dashboard.
package gate

import (
	"path"
	"strings"
)

type RouteClass int

const (
	Protected RouteClass = iota
	Public
	AuthExempt
	SetupExempt
)

func (c RouteClass) String() string {
	switch c {
	case Public:
		return "public"
	case AuthExempt:
		return "auth_exempt"
	case SetupExempt:
		return "setup_exempt"
	default:
		return "protected"
	}
}

const (
	SignInPath    = "/sign-in"
	SignUpPath    = "/sign-up"
	SetupPath     = "/setup"
	DashboardPath = "/dashboard"
)

type route struct {
	prefix string
	exact  bool
	class  RouteClass
	// authPage routes send an already signed-in user to the dashboard.
	authPage bool
}

// Order matters: the first match wins.
var routes = []route{
	{prefix: "/", exact: true, class: Public},
	{prefix: "/pricing", class: Public},
	{prefix: "/about", class: Public},
	{prefix: "/features", class: Public},
	{prefix: "/contact", class: Public},
	{prefix: "/legal", class: Public},
	{prefix: "/api/public", class: Public},
	{prefix: "/api/webhooks", class: Public},
	{prefix: "/api/health", class: Public},
	{prefix: "/api/auth", class: Public},
	{prefix: "/api/csrf", class: Public},

	{prefix: SignInPath, class: AuthExempt, authPage: true},
	{prefix: SignUpPath, class: AuthExempt, authPage: true},
	{prefix: "/forgot-password", class: AuthExempt},
	{prefix: "/reset-password", class: AuthExempt},
	{prefix: "/auth/callback", class: AuthExempt},
	{prefix: "/auth/confirm", class: AuthExempt},

	{prefix: SetupPath, class: SetupExempt},
	{prefix: "/api/setup", class: SetupExempt},
}

// Classify maps a request path to its class without any I/O. A prefix
// matches itself and its sub-paths, never a longer sibling ("/legal" does
// not match "/legalese").
func Classify(p string) RouteClass {
	r, _ := match(p)
	return r.class
}

func isAuthPage(p string) bool {
	r, ok := match(p)
	return ok && r.authPage
}

func match(p string) (route, bool) {
	p = cleanPath(p)
	for _, r := range routes {
		if r.exact {
			if p == r.prefix {
				return r, true
			}
			continue
		}
		if p == r.prefix || strings.HasPrefix(p, r.prefix+"/") {
			return r, true
		}
	}
	return route{class: Protected}, false
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// IsAPI reports whether p is served as JSON rather than pages.
func IsAPI(p string) bool {
	p = cleanPath(p)
	return p == "/api" || strings.HasPrefix(p, "/api/")
}

var (
	excludedPrefixes = []string{"/_next/static/", "/_next/image/", "/static/", "/assets/"}
	excludedFiles    = []string{"/_next/image", "/favicon.ico", "/robots.txt", "/sitemap.xml"}
	staticExts       = map[string]struct{}{
		".svg": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".ico": {},
		".css": {}, ".js": {}, ".map": {}, ".woff": {}, ".woff2": {},
	}
)

// IsExcluded reports whether p is a static asset that never reaches the gate.
// Only canonical paths qualify, so dot segments cannot climb out of an asset
// prefix. The extension rule never exempts a Protected page path.
func IsExcluded(p string) bool {
	if p == "" || p != cleanPath(p) {
		return false
	}
	for _, pre := range excludedPrefixes {
		if strings.HasPrefix(p, pre) {
			return true
		}
	}
	for _, f := range excludedFiles {
		if p == f {
			return true
		}
	}
	if IsAPI(p) || Classify(p) == Protected {
		return false
	}
	_, ok := staticExts[strings.ToLower(path.Ext(p))]
	return ok
}
