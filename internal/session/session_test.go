package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"greenlabel.or.id/admin/internal/apiclient"
)

var testNow = time.Unix(1_700_000_000, 0)

func fixedClock() time.Time { return testNow }

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

type fakeAPI struct {
	t *testing.T

	mu            sync.Mutex
	hits          map[string]int
	loginStatus   int
	token         string
	expiresIn     any
	profileStatus int
	profile       map[string]any
	updateReply   map[string]any
	lastAuth      string

	// beforeUpdate runs while PUT /profile is in flight.
	beforeUpdate func()
}

func (f *fakeAPI) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.Method+" "+r.URL.Path]++
	f.lastAuth = r.Header.Get("Authorization")
	f.mu.Unlock()

	reply := func(status int, payload map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}
	fail := func(status int) {
		reply(status, map[string]any{"error": map[string]any{"code": http.StatusText(status), "message": "failed"}})
	}

	switch r.Method + " " + r.URL.Path {
	case "POST /auth/login":
		if f.loginStatus != 0 && f.loginStatus != http.StatusOK {
			fail(f.loginStatus)
			return
		}
		data := map[string]any{"access_token": f.token, "token_type": "Bearer"}
		if f.expiresIn != nil {
			data["expires_in"] = f.expiresIn
		}
		reply(http.StatusOK, map[string]any{"data": data})
	case "GET /profile":
		if f.profileStatus != 0 && f.profileStatus != http.StatusOK {
			fail(f.profileStatus)
			return
		}
		reply(http.StatusOK, map[string]any{"data": f.profile})
	case "PUT /profile":
		if f.beforeUpdate != nil {
			f.beforeUpdate()
		}
		reply(http.StatusOK, map[string]any{"data": f.updateReply})
	case "PUT /profile/password":
		w.WriteHeader(http.StatusNoContent)
	default:
		fail(http.StatusNotFound)
	}
}

func newTestSession(t *testing.T, api *fakeAPI, storage Storage) *Session {
	t.Helper()
	api.t = t
	api.hits = map[string]int{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client := apiclient.New(srv.URL)
	s := New(client, storage, WithClock(fixedClock), WithLogger(func(string, string, map[string]any) {}))
	client.SetTokenSource(s)
	return s
}

func TestLoginInstallsTokenAndClaims(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "u-1", "email": "a@x.com"})
	api := &fakeAPI{token: token, expiresIn: 3600, profileStatus: http.StatusServiceUnavailable}
	storage := NewMemoryStorage()
	s := newTestSession(t, api, storage)

	if err := s.Login(context.Background(), "a@x.com", "p"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !s.IsAuthenticated() {
		t.Fatalf("expected authenticated session")
	}
	exp, ok := s.ExpiresAt()
	if !ok || exp != testNow.Unix()+3600 {
		t.Fatalf("unexpected expiry %d (%v)", exp, ok)
	}
	id := s.Identity()
	if id == nil || id.ExternalID != "u-1" || id.Email != "a@x.com" {
		t.Fatalf("identity not decoded from claims: %+v", id)
	}
	if s.PermissionsReady() {
		t.Fatalf("permissions must not be ready after failed profile fetch")
	}
	creds, _ := storage.Load(context.Background())
	if creds.Token != token || creds.ExpiresAt != exp {
		t.Fatalf("credentials not persisted: %+v", creds)
	}
}

func TestLoginFetchesProfile(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "u-1", "email": "a@x.com"})
	api := &fakeAPI{
		token: token,
		profile: map[string]any{
			"xid":         "u-1",
			"email":       "a@x.com",
			"name":        "Ana",
			"roles":       []string{"admin"},
			"permissions": []any{"user.view", map[string]string{"key": "role.view"}},
		},
	}
	s := newTestSession(t, api, nil)

	if err := s.Login(context.Background(), "a@x.com", "p"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, ok := s.ExpiresAt(); ok {
		t.Fatalf("expiry must stay unset without expires_in")
	}
	if !s.PermissionsReady() || !s.Hydrated() {
		t.Fatalf("expected ready and hydrated session")
	}
	id := s.Identity()
	if id.Name != "Ana" || !id.Roles.Has("admin") || !id.Permissions.Has("role.view") {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if api.lastAuth != "Bearer "+token {
		t.Fatalf("profile fetched without bearer: %q", api.lastAuth)
	}
}

func TestLoginUnauthorized(t *testing.T) {
	storage := NewMemoryStorage()
	_ = storage.Save(context.Background(), Credentials{Token: "old", ExpiresAt: testNow.Unix() + 10})
	api := &fakeAPI{loginStatus: http.StatusUnauthorized}
	s := newTestSession(t, api, storage)

	err := s.Login(context.Background(), "a@x.com", "bad")
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if s.IsAuthenticated() {
		t.Fatalf("session must stay signed out")
	}
	if creds, _ := storage.Load(context.Background()); creds.Token != "" {
		t.Fatalf("storage not cleared: %+v", creds)
	}
}

type failingRequester struct{ err error }

func (f failingRequester) Fetch(context.Context, string, apiclient.RequestOptions, any) error {
	return f.err
}

func TestLoginWrapsUntypedErrors(t *testing.T) {
	s := New(failingRequester{err: errors.New("boom")}, nil, WithLogger(func(string, string, map[string]any) {}))
	err := s.Login(context.Background(), "a@x.com", "p")
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) || apiErr.Message != "Login failed" {
		t.Fatalf("expected wrapped login error, got %v", err)
	}
}

func TestIsTokenExpired(t *testing.T) {
	cases := []struct {
		name    string
		expires int64
		want    bool
	}{
		{"unset", 0, false},
		{"future", testNow.Unix() + 1, false},
		{"now", testNow.Unix(), true},
		{"past", testNow.Unix() - 60, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(failingRequester{}, nil, WithClock(fixedClock))
			s.token = "t"
			s.expiresAt = tc.expires
			if got := s.IsTokenExpired(); got != tc.want {
				t.Fatalf("IsTokenExpired = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "u-1"})
	api := &fakeAPI{token: token, expiresIn: 60, profile: map[string]any{"xid": "u-1", "email": "a@x.com"}}
	storage := NewMemoryStorage()
	s := newTestSession(t, api, storage)
	if err := s.Login(context.Background(), "a@x.com", "p"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	before := api.count("GET /profile") + api.count("POST /auth/login")

	if err := s.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if s.IsAuthenticated() || s.Identity() != nil || s.Hydrated() || s.PermissionsReady() {
		t.Fatalf("session not cleared")
	}
	if _, ok := s.ExpiresAt(); ok {
		t.Fatalf("expiry not cleared")
	}
	if creds, _ := storage.Load(context.Background()); creds != (Credentials{}) {
		t.Fatalf("storage not cleared: %+v", creds)
	}
	if after := api.count("GET /profile") + api.count("POST /auth/login"); after != before {
		t.Fatalf("logout made network calls")
	}
}

type countingStorage struct {
	Storage
	loads int
}

func (c *countingStorage) Load(ctx context.Context) (Credentials, error) {
	c.loads++
	return c.Storage.Load(ctx)
}

func TestRestoreIsIdempotent(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "u-9", "email": "r@x.com"})
	storage := &countingStorage{Storage: NewMemoryStorage()}
	_ = storage.Save(context.Background(), Credentials{Token: token, ExpiresAt: testNow.Unix() + 100})
	api := &fakeAPI{profileStatus: http.StatusInternalServerError}
	s := newTestSession(t, api, storage)

	id, ok := s.Restore(context.Background())
	if !ok || id.ExternalID != "u-9" {
		t.Fatalf("expected optimistic identity, got %+v", id)
	}
	if !s.Hydrated() {
		t.Fatalf("expected hydrated session")
	}
	id, ok = s.Restore(context.Background())
	if !ok || id.Email != "r@x.com" {
		t.Fatalf("second restore lost identity: %+v", id)
	}
	if storage.loads != 1 {
		t.Fatalf("storage read %d times", storage.loads)
	}
	if api.count("GET /profile") != 1 {
		t.Fatalf("expected exactly one profile fetch, got %d", api.count("GET /profile"))
	}
}

func TestRestoreExpiredToken(t *testing.T) {
	storage := NewMemoryStorage()
	_ = storage.Save(context.Background(), Credentials{Token: "x.y.z", ExpiresAt: testNow.Unix()})
	api := &fakeAPI{}
	s := newTestSession(t, api, storage)

	if id, ok := s.Restore(context.Background()); ok || id != nil {
		t.Fatalf("expired token restored: %+v", id)
	}
	if s.IsAuthenticated() || !s.Hydrated() {
		t.Fatalf("expected cleared and hydrated session")
	}
	if creds, _ := storage.Load(context.Background()); creds.Token != "" {
		t.Fatalf("expired credentials kept")
	}
	if api.count("GET /profile") != 0 {
		t.Fatalf("no network call expected")
	}
}

func TestRestoreMalformedTokenKeepsSession(t *testing.T) {
	storage := NewMemoryStorage()
	_ = storage.Save(context.Background(), Credentials{Token: "not-a-jwt"})
	api := &fakeAPI{profileStatus: http.StatusBadGateway}
	s := newTestSession(t, api, storage)

	if id, ok := s.Restore(context.Background()); ok || id != nil {
		t.Fatalf("malformed token must not yield identity: %+v", id)
	}
	if !s.IsAuthenticated() {
		t.Fatalf("token should stay installed")
	}
}

func TestFetchProfileUnauthorizedClears(t *testing.T) {
	storage := NewMemoryStorage()
	_ = storage.Save(context.Background(), Credentials{Token: signToken(t, jwt.MapClaims{"sub": "u"})})
	api := &fakeAPI{profileStatus: http.StatusUnauthorized}
	s := newTestSession(t, api, storage)

	s.Restore(context.Background())
	if s.IsAuthenticated() || s.Identity() != nil {
		t.Fatalf("401 must clear the session")
	}
	if !s.Hydrated() {
		t.Fatalf("fetch profile must mark hydrated")
	}
	if creds, _ := storage.Load(context.Background()); creds.Token != "" {
		t.Fatalf("storage not cleared after 401")
	}
}

func TestFetchProfileWithoutToken(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(t, api, nil)
	id, err := s.FetchProfile(context.Background())
	if err != nil || id != nil {
		t.Fatalf("expected (nil, nil), got %+v %v", id, err)
	}
	if !s.Hydrated() || api.count("GET /profile") != 0 {
		t.Fatalf("expected hydrated without network")
	}
}

func TestUpdateProfileMerges(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "u-1"})
	api := &fakeAPI{
		token:       token,
		profile:     map[string]any{"xid": "u-1", "email": "a@x.com", "name": "Ana", "roles": []string{"admin"}},
		updateReply: map[string]any{"name": "Ana Maria"},
	}
	s := newTestSession(t, api, nil)
	if err := s.Login(context.Background(), "a@x.com", "p"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	id, err := s.UpdateProfile(context.Background(), "Ana Maria", "a@x.com")
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if id.Name != "Ana Maria" || id.Email != "a@x.com" || !id.Roles.Has("admin") {
		t.Fatalf("merge lost fields: %+v", id)
	}

	id, err = s.UpdatePassword(context.Background(), "p", "q", "q")
	if err != nil || id != nil {
		t.Fatalf("expected empty password reply, got %+v %v", id, err)
	}
	if s.Identity().Name != "Ana Maria" {
		t.Fatalf("identity changed by empty reply")
	}
}

func TestUpdateProfileAfterLogoutIsDiscarded(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "u-1"})
	api := &fakeAPI{
		token:       token,
		profile:     map[string]any{"xid": "u-1", "email": "a@x.com", "name": "Ana"},
		updateReply: map[string]any{"xid": "u-1", "email": "a@x.com", "name": "Ana Maria"},
	}
	s := newTestSession(t, api, nil)
	ctx := context.Background()
	if err := s.Login(ctx, "a@x.com", "p"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	api.beforeUpdate = func() { _ = s.Logout(ctx) }

	id, err := s.UpdateProfile(ctx, "Ana Maria", "a@x.com")
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if id != nil || s.Identity() != nil {
		t.Fatalf("identity installed without a token: %+v", s.Identity())
	}
	if s.IsAuthenticated() {
		t.Fatalf("logout must stick")
	}
}

func TestFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	fs := NewFileStorage(path)
	ctx := context.Background()

	if creds, err := fs.Load(ctx); err != nil || creds != (Credentials{}) {
		t.Fatalf("expected empty load, got %+v %v", creds, err)
	}
	want := Credentials{Token: "tok", ExpiresAt: 42}
	if err := fs.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}
	got, err := fs.Load(ctx)
	if err != nil || got != want {
		t.Fatalf("Load: %+v %v", got, err)
	}
	if err := fs.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := fs.Clear(ctx); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}
