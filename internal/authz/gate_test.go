package authz

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"greenlabel.or.id/admin/internal/apiclient"
	"greenlabel.or.id/admin/internal/session"
)

const profileBody = `{"data":{"xid":"u-1","email":"a@x.com","roles":["editor"],"permissions":["user.view","role.view"]}}`

func newGate(t *testing.T, token string) (*Gate, *session.Session, *atomic.Int32) {
	t.Helper()
	var profileHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/profile" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		profileHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, profileBody)
	}))
	t.Cleanup(srv.Close)

	storage := session.NewMemoryStorage()
	if token != "" {
		_ = storage.Save(context.Background(), session.Credentials{Token: token})
	}
	client := apiclient.New(srv.URL)
	s := session.New(client, storage, session.WithLogger(func(string, string, map[string]any) {}))
	client.SetTokenSource(s)
	return New(s), s, &profileHits
}

func TestPredicatesWithoutIdentity(t *testing.T) {
	g, _, _ := newGate(t, "")
	if g.HasPermission("user.view") || g.HasAnyPermission("user.view") || g.HasAllPermissions() || g.HasRole("editor") {
		t.Fatalf("predicates must be false without identity")
	}
}

func TestEnsurePermissionsLoadedIsIdempotent(t *testing.T) {
	g, s, hits := newGate(t, "stored-token")
	ctx := context.Background()

	g.EnsurePermissionsLoaded(ctx)
	g.EnsurePermissionsLoaded(ctx)

	if got := hits.Load(); got != 1 {
		t.Fatalf("expected one profile fetch, got %d", got)
	}
	if !s.PermissionsReady() {
		t.Fatalf("permissions should be ready")
	}
}

func TestEnsurePermissionsLoadedWithoutToken(t *testing.T) {
	g, s, hits := newGate(t, "")
	g.EnsurePermissionsLoaded(context.Background())
	if hits.Load() != 0 {
		t.Fatalf("no profile fetch expected without token")
	}
	if !s.Hydrated() || s.PermissionsReady() {
		t.Fatalf("expected hydrated but not ready")
	}
}

func TestPredicates(t *testing.T) {
	g, _, _ := newGate(t, "stored-token")
	g.EnsurePermissionsLoaded(context.Background())

	cases := []struct {
		name string
		got  bool
		want bool
	}{
		{"has", g.HasPermission("user.view"), true},
		{"has missing", g.HasPermission("user.delete"), false},
		{"any", g.HasAnyPermission("user.delete", "role.view"), true},
		{"any empty", g.HasAnyPermission(), false},
		{"all", g.HasAllPermissions("user.view", "role.view"), true},
		{"all partial", g.HasAllPermissions("user.view", "user.delete"), false},
		{"all empty", g.HasAllPermissions(), true},
		{"role", g.HasRole("editor"), true},
		{"role missing", g.HasRole("admin"), false},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestRequirePermission(t *testing.T) {
	g, _, _ := newGate(t, "stored-token")
	ctx := context.Background()

	if err := g.RequirePermission(ctx, ModeAll, PermUserView, PermRoleView); err != nil {
		t.Fatalf("expected allowed, got %v", err)
	}
	if err := g.RequirePermission(ctx, ModeAny, PermUserDelete, PermUserView); err != nil {
		t.Fatalf("expected any to pass, got %v", err)
	}

	err := g.RequirePermission(ctx, ModeAll, PermUserView, PermUserDelete)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Status() != http.StatusForbidden || len(denied.Required) != 2 {
		t.Fatalf("unexpected denial: %#v", err)
	}

	if err := g.RequireRole(ctx, "editor"); err != nil {
		t.Fatalf("RequireRole: %v", err)
	}
	if err := g.RequireRole(ctx, "admin"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected role denial, got %v", err)
	}
}

func TestRequirePermissionSignedOut(t *testing.T) {
	g, _, _ := newGate(t, "")
	if err := g.RequirePermission(context.Background(), ModeAll); !errors.Is(err, ErrForbidden) {
		t.Fatalf("signed out callers must be denied, got %v", err)
	}
}
