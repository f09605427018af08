package siteapi

import (
	"net/http"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

// principalContextKey is where the gate stashes the resolved principal.
const principalContextKey = "siteapi.principal"

// Gate enforces the request-level authorization policies. It holds the
// injected Config so the allow-list is read live per request, never from
// the environment.
type Gate struct {
	cfg *Config
}

// NewGate creates an authorization gate over the given configuration.
func NewGate(cfg *Config) *Gate {
	return &Gate{cfg: cfg}
}

// CurrentPrincipal returns the principal resolved from the request session,
// if any. It never mutates session state.
func CurrentPrincipal(c echo.Context) (*Principal, bool) {
	if p, ok := c.Get(principalContextKey).(*Principal); ok {
		return p, true
	}
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return nil, false
	}
	p, ok := sess.Values[sessionKeyPrincipal].(*Principal)
	if !ok || p == nil {
		return nil, false
	}
	c.Set(principalContextKey, p)
	return p, true
}

// RequireAuthenticated passes only when a valid session resolves to a
// principal; otherwise 401.
func (g *Gate) RequireAuthenticated(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := CurrentPrincipal(c); !ok {
			return JSONError(c, http.StatusUnauthorized, "Authentication required")
		}
		return next(c)
	}
}

// RequireAdmin passes only for an authenticated principal whose primary
// email is allow-listed. No session at all is 401; a session with the
// wrong email is 403.
func (g *Gate) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := CurrentPrincipal(c)
		if !ok {
			return JSONError(c, http.StatusUnauthorized, "Authentication required")
		}
		if !g.cfg.IsAdminEmail(p.PrimaryEmail()) {
			return JSONError(c, http.StatusForbidden, "Access denied",
				"Your email is not authorized to access admin features")
		}
		return next(c)
	}
}

// PublicReadAdminWrite lets read-only verbs through unconditionally and
// applies RequireAdmin to everything else.
func (g *Gate) PublicReadAdminWrite(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		switch c.Request().Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return next(c)
		}
		return g.RequireAdmin(next)(c)
	}
}
