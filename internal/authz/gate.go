// Package authz answers role and permission questions about the current
// session and guards privileged operations.
package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"greenlabel.or.id/admin/internal/session"
)

var ErrForbidden = errors.New("authz: forbidden")

// Mode selects how RequirePermission combines several keys.
type Mode int

const (
	ModeAll Mode = iota
	ModeAny
)

func (m Mode) String() string {
	if m == ModeAny {
		return "any"
	}
	return "all"
}

// DeniedError is returned when a permission or role check fails.
type DeniedError struct {
	Mode     Mode
	Required []string
	Role     string
}

func (e *DeniedError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("authz: forbidden: role %q required", e.Role)
	}
	return fmt.Sprintf("authz: forbidden: %s of [%s] required", e.Mode, strings.Join(e.Required, ", "))
}

func (e *DeniedError) Unwrap() error { return ErrForbidden }

// Status is the HTTP equivalent of the denial.
func (e *DeniedError) Status() int { return http.StatusForbidden }

// Gate reads the session and delegates every state change to it.
type Gate struct {
	session *session.Session
}

func New(s *session.Session) *Gate {
	return &Gate{session: s}
}

func (g *Gate) HasPermission(key string) bool {
	id := g.session.Identity()
	return id != nil && id.Permissions.Has(key)
}

// HasAnyPermission is false for an empty key list.
func (g *Gate) HasAnyPermission(keys ...string) bool {
	id := g.session.Identity()
	if id == nil {
		return false
	}
	for _, k := range keys {
		if id.Permissions.Has(k) {
			return true
		}
	}
	return false
}

// HasAllPermissions is true for an empty key list once an identity exists.
func (g *Gate) HasAllPermissions(keys ...string) bool {
	id := g.session.Identity()
	if id == nil {
		return false
	}
	for _, k := range keys {
		if !id.Permissions.Has(k) {
			return false
		}
	}
	return true
}

func (g *Gate) HasRole(role string) bool {
	id := g.session.Identity()
	return id != nil && id.Roles.Has(role)
}

// EnsurePermissionsLoaded restores the session if it was never hydrated and
// fetches the profile when permissions are still missing. Failures are left
// for the caller to observe through the session's readiness.
func (g *Gate) EnsurePermissionsLoaded(ctx context.Context) {
	if g.session.PermissionsReady() {
		return
	}
	if !g.session.Hydrated() {
		g.session.Restore(ctx)
	}
	if !g.session.PermissionsReady() && g.session.IsAuthenticated() {
		_, _ = g.session.FetchProfile(ctx)
	}
}

// RequirePermission loads permissions and returns a *DeniedError unless the
// keys are satisfied under mode.
func (g *Gate) RequirePermission(ctx context.Context, mode Mode, keys ...string) error {
	g.EnsurePermissionsLoaded(ctx)
	allowed := g.HasAllPermissions(keys...)
	if mode == ModeAny {
		allowed = g.HasAnyPermission(keys...)
	}
	if !allowed {
		return &DeniedError{Mode: mode, Required: append([]string(nil), keys...)}
	}
	return nil
}

// RequireRole is RequirePermission for a single role.
func (g *Gate) RequireRole(ctx context.Context, role string) error {
	g.EnsurePermissionsLoaded(ctx)
	if !g.HasRole(role) {
		return &DeniedError{Role: role}
	}
	return nil
}
