// Package guard decides whether a navigation into the admin area may proceed
// and where to send the user when it may not.
package guard

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"greenlabel.or.id/admin/internal/obs"
	"greenlabel.or.id/admin/internal/session"
)

// State of one navigation attempt.
type State int

const (
	Unchecked State = iota
	Checking
	Allowed
	Denied
)

func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "unchecked"
	}
}

// Decision is the outcome of Check. Redirect is set only when Denied.
type Decision struct {
	State    State
	Redirect string
}

// Guard evaluates navigation attempts against the session.
type Guard struct {
	session   *session.Session
	loginPath string
	prefixes  []string
}

// Option configures Guard.
type Option func(*Guard)

// WithLoginPath sets the login location, /login by default.
func WithLoginPath(path string) Option {
	return func(g *Guard) {
		if path = strings.TrimSpace(path); path != "" {
			g.loginPath = path
		}
	}
}

// WithProtectedPrefixes replaces the guarded areas, /admin by default.
func WithProtectedPrefixes(prefixes ...string) Option {
	return func(g *Guard) {
		var cleaned []string
		for _, p := range prefixes {
			p = strings.TrimRight(strings.TrimSpace(p), "/")
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			g.prefixes = cleaned
		}
	}
}

func New(s *session.Session, opts ...Option) *Guard {
	g := &Guard{session: s, loginPath: "/login", prefixes: []string{"/admin"}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Protected reports whether path lies under a guarded prefix.
func (g *Guard) Protected(path string) bool {
	for _, prefix := range g.prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// LoginRedirect builds the login location carrying destination.
func (g *Guard) LoginRedirect(destination string) string {
	return g.loginPath + "?redirect=" + EscapeComponent(destination)
}

// componentUnescaper maps url.QueryEscape output onto URI component escaping.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EscapeComponent escapes v as a URI component: spaces become %20 and
// !'()* stay literal.
func EscapeComponent(v string) string {
	return componentUnescaper.Replace(url.QueryEscape(v))
}

// Check evaluates a navigation to destination (path plus optional query).
// Denials are reported through the Decision, never as errors.
func (g *Guard) Check(ctx context.Context, destination string) Decision {
	path := destination
	if u, err := url.Parse(destination); err == nil {
		path = u.Path
	}
	if !g.Protected(path) {
		return Decision{State: Allowed}
	}

	s := g.session
	if s.IsTokenExpired() {
		return g.deny(ctx, destination, "expired")
	}
	if !s.IsAuthenticated() {
		s.Restore(ctx)
	}
	if s.IsTokenExpired() {
		return g.deny(ctx, destination, "expired")
	}
	if s.IsAuthenticated() && s.Identity() == nil {
		_, _ = s.FetchProfile(ctx)
	}
	if !s.IsAuthenticated() {
		return g.deny(ctx, destination, "unauthenticated")
	}
	return Decision{State: Allowed}
}

func (g *Guard) deny(ctx context.Context, destination, reason string) Decision {
	if reason == "expired" {
		_ = g.session.Logout(ctx)
	}
	obs.Info("navigation denied", map[string]any{"destination": destination, "reason": reason})
	return Decision{State: Denied, Redirect: g.LoginRedirect(destination)}
}

// Middleware redirects denied requests with 302 Found.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := g.Check(r.Context(), r.URL.RequestURI())
		if decision.State == Denied {
			http.Redirect(w, r, decision.Redirect, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
