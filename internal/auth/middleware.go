// Package auth binds the platform bearer-token library to the tracker's
// routes and scopes.
package auth

import (
	"context"
	"net/http"

	authlib "github.com/Varn22/pixel-time-tracker/pkg/platform/auth"
)

type (
	Claims = authlib.Claims
	Config = authlib.Config
)

// PublicPaths are served without a bearer token.
var PublicPaths = []string{"/healthz", "/metrics"}

// NewMiddleware returns bearer-token middleware that leaves PublicPaths open.
func NewMiddleware(cfg Config) func(http.Handler) http.Handler {
	return authlib.NewMiddleware(cfg, authlib.SkipPaths(PublicPaths...)).Wrap
}

// FromContext returns the claims the middleware attached to ctx.
func FromContext(ctx context.Context) (*Claims, bool) {
	return authlib.ClaimsFrom(ctx)
}
