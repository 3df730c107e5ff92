package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/crypto/bcrypt"

	"greenlabel.or.id/admin/internal/apiclient"
	"greenlabel.or.id/admin/internal/authz"
	"greenlabel.or.id/admin/internal/catalog"
	"greenlabel.or.id/admin/internal/config"
	"greenlabel.or.id/admin/internal/guard"
	"greenlabel.or.id/admin/internal/mockapi"
	"greenlabel.or.id/admin/internal/session"
	"greenlabel.or.id/admin/internal/store"
)

func newBackend(t *testing.T) *config.Config {
	t.Helper()
	s, err := mockapi.New(mockapi.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("mockapi: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.APIBase = srv.URL + "/api"
	cfg.Storage = config.StorageMemory
	return cfg
}

func TestConsoleAgainstMockBackend(t *testing.T) {
	ctx := context.Background()
	cfg := newBackend(t)
	storage := session.NewFileStorage(filepath.Join(t.TempDir(), "session.json"))
	reg := prometheus.NewRegistry()
	a := New(cfg, storage, WithRegisterer(reg))

	if d := a.Guard.Check(ctx, "/admin/users"); d.State != guard.Denied || d.Redirect != "/login?redirect=%2Fadmin%2Fusers" {
		t.Fatalf("expected denial before login, got %+v", d)
	}

	if err := a.Session.Login(ctx, mockapi.DemoAdminEmail, mockapi.DemoPassword); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !a.Gate.HasPermission(authz.PermUserDelete) || !a.Gate.HasRole("Admin") {
		t.Fatalf("admin identity not loaded: %+v", a.Session.Identity())
	}
	if d := a.Guard.Check(ctx, "/admin/users"); d.State != guard.Allowed {
		t.Fatalf("expected allowed after login, got %+v", d)
	}

	if err := a.Users.Fetch(ctx, false); err != nil {
		t.Fatalf("users: %v", err)
	}
	if got := len(a.Users.Items()); got != 4 {
		t.Fatalf("expected 4 seeded users, got %d", got)
	}
	if err := a.RBAC.FetchRoles(ctx, false); err != nil {
		t.Fatalf("roles: %v", err)
	}
	if _, ok := a.RBAC.RoleByName("editor"); !ok {
		t.Fatal("expected seeded editor role")
	}

	if err := a.Catalog.FetchAll(ctx, false); err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if got := len(a.Catalog.Certifications()); got != 3 {
		t.Fatalf("expected 2 certificates plus 1 placeholder, got %d", got)
	}
	page, err := a.Products.List(ctx, store.ProductQuery{Category: "Building Materials"})
	if err != nil {
		t.Fatalf("products: %v", err)
	}
	if page.Total != 1 || page.Items[0].BrandName != "Semen Hijau" {
		t.Fatalf("unexpected product page %+v", page)
	}

	product := a.Catalog.Products()[2]
	created, err := a.Catalog.Create(ctx, store.NewCertification{ProductID: product.ID, CertificateNumber: "GLI-E2E-1"})
	if err != nil {
		t.Fatalf("create certification: %v", err)
	}
	if created.ID.Synthesized() || created.Status != catalog.DefaultStatus {
		t.Fatalf("unexpected created certification %+v", created)
	}
	updated, err := a.Catalog.Update(ctx, created.ID, store.CertificationChanges{Status: "suspended"})
	if err != nil {
		t.Fatalf("update certification: %v", err)
	}
	if updated.Status != "suspended" {
		t.Fatalf("expected suspended, got %q", updated.Status)
	}
	if err := a.Catalog.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete certification: %v", err)
	}
	if _, ok := a.Catalog.Certification(created.ID); ok {
		t.Fatal("deleted certification still cached")
	}

	if n := testutil.CollectAndCount(a.Metrics.Requests()); n == 0 {
		t.Fatal("expected client request metrics")
	}

	// A second console over the same storage picks up the session.
	b := New(cfg, storage)
	if _, ok := b.Session.Restore(ctx); !ok {
		t.Fatal("expected restored session")
	}
	if err := b.Gate.RequirePermission(ctx, authz.ModeAll, authz.PermCertificationManage); err != nil {
		t.Fatalf("restored admin should manage certifications: %v", err)
	}
}

func TestEditorIsDeniedCertificationWrites(t *testing.T) {
	ctx := context.Background()
	a := New(newBackend(t), nil)

	if err := a.Session.Login(ctx, mockapi.DemoEditorEmail, mockapi.DemoPassword); err != nil {
		t.Fatalf("login: %v", err)
	}
	err := a.Gate.RequirePermission(ctx, authz.ModeAny, authz.PermCertificationManage, authz.PermUserDelete)
	if !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	if err := a.Catalog.FetchAll(ctx, false); err != nil {
		t.Fatalf("catalog: %v", err)
	}
	product := a.Catalog.Products()[0]
	_, err = a.Catalog.Create(ctx, store.NewCertification{ProductID: product.ID, CertificateNumber: "GLI-X"})
	if !errors.Is(err, apiclient.ErrForbidden) {
		t.Fatalf("expected server-side 403, got %v", err)
	}
	if a.Catalog.Err() != "missing permission certification.manage" {
		t.Fatalf("unexpected recorded failure %q", a.Catalog.Err())
	}
	if !a.Session.IsAuthenticated() {
		t.Fatal("403 must not clear the session")
	}
}

func TestPreviewHandler(t *testing.T) {
	ctx := context.Background()
	a := New(newBackend(t), nil)
	srv := httptest.NewServer(a.PreviewHandler())
	t.Cleanup(srv.Close)
	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	get := func(path string) (int, *http.Response) {
		t.Helper()
		resp, err := client.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp.StatusCode, resp
	}

	code, resp := get("/admin/users")
	if code != http.StatusFound || resp.Header.Get("Location") != "/login?redirect=%2Fadmin%2Fusers" {
		t.Fatalf("expected redirect to login, got %d %q", code, resp.Header.Get("Location"))
	}
	if code, _ := get("/login?redirect=%2Fadmin%2Fusers"); code != http.StatusUnauthorized {
		t.Fatalf("login page should report 401, got %d", code)
	}

	if err := a.Session.Login(ctx, mockapi.DemoEditorEmail, mockapi.DemoPassword); err != nil {
		t.Fatalf("login: %v", err)
	}
	code, resp = get("/admin/users")
	if code != http.StatusOK {
		t.Fatalf("editor should see users, got %d", code)
	}
	var users []store.User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil || len(users) != 4 {
		t.Fatalf("unexpected users page: %v %+v", err, users)
	}
	if code, _ := get("/admin/permissions"); code != http.StatusForbidden {
		t.Fatalf("editor lacks permission.view, expected 403, got %d", code)
	}
	if code, _ := get("/admin/nope"); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown page, got %d", code)
	}

	code, resp = get("/admin")
	var nav guard.Navigation
	if err := json.NewDecoder(resp.Body).Decode(&nav); err != nil || code != http.StatusOK {
		t.Fatalf("nav: %d %v", code, err)
	}
	for _, item := range nav {
		if item.Permission == authz.PermCertificationView {
			return
		}
	}
	t.Fatalf("editor nav should include certification groups: %+v", nav)
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cases := []struct {
		name string
		cfg  config.Config
	}{
		{"memory", config.Config{Storage: config.StorageMemory}},
		{"file", config.Config{Storage: config.StorageFile, StoragePath: filepath.Join(dir, "s.json")}},
		{"sqlite", config.Config{Storage: config.StorageSQLite, StoragePath: filepath.Join(dir, "nested", "s.db")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, closeFn, err := OpenStorage(ctx, &tc.cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer closeFn()

			want := session.Credentials{Token: "tok", ExpiresAt: 42}
			if err := s.Save(ctx, want); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := s.Load(ctx)
			if err != nil || got != want {
				t.Fatalf("load = %+v, %v", got, err)
			}
			if err := s.Clear(ctx); err != nil {
				t.Fatalf("clear: %v", err)
			}
		})
	}

	if _, _, err := OpenStorage(ctx, &config.Config{Storage: "etcd"}); err == nil {
		t.Fatal("expected unsupported storage error")
	}
}

func TestNewDefaultsConfig(t *testing.T) {
	a := New(nil, nil, WithHTTPClient(http.DefaultClient))
	if a.Config == nil || a.Client.BaseURL() != "http://localhost:8080/api" {
		t.Fatalf("unexpected defaults: %+v", a.Config)
	}
	if !a.Guard.Protected("/admin") || a.Guard.Protected("/administrator") {
		t.Fatal("guard should use the default protected prefix")
	}
}
