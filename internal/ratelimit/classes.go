// Package ratelimit bounds requests per identifier and endpoint class with a
// window anchored to the first request. The counter store is pluggable; the
// limiter itself never turns a store failure into an outage.
package ratelimit

import "time"

const (
	ClassDefault = "default"
	ClassAuth    = "auth"
	ClassLogin   = "login"
	ClassSignup  = "signup"
	ClassAPI     = "api"
)

// Class is one row of the static limit table.
type Class struct {
	Name    string
	Limit   int
	Window  time.Duration
	Message string
}

var classes = map[string]Class{
	ClassDefault: {
		Name:    ClassDefault,
		Limit:   60,
		Window:  time.Minute,
		Message: "Too many requests. Please slow down and try again shortly.",
	},
	ClassAuth: {
		Name:    ClassAuth,
		Limit:   10,
		Window:  time.Minute,
		Message: "Too many authentication attempts. Please wait a minute and try again.",
	},
	ClassLogin: {
		Name:    ClassLogin,
		Limit:   5,
		Window:  time.Minute,
		Message: "Too many sign-in attempts. Please wait a minute and try again.",
	},
	ClassSignup: {
		Name:    ClassSignup,
		Limit:   5,
		Window:  time.Hour,
		Message: "Too many sign-up attempts from this network. Please try again later.",
	},
	ClassAPI: {
		Name:    ClassAPI,
		Limit:   100,
		Window:  time.Minute,
		Message: "API rate limit exceeded. Please retry after the indicated delay.",
	},
}

// Lookup returns the named class, or the default class for unknown names.
func Lookup(name string) Class {
	if c, ok := classes[name]; ok {
		return c
	}
	return classes[ClassDefault]
}
