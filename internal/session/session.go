// Package session owns the bearer token, its expiry and the identity decoded
// from it. A 401 from the API is the only event that clears it implicitly.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"greenlabel.or.id/admin/internal/apiclient"
	"greenlabel.or.id/admin/internal/audit"
	"greenlabel.or.id/admin/internal/obs"
)

// LogFunc receives operational log lines. Tokens and passwords are never
// passed to it.
type LogFunc func(level, msg string, fields map[string]any)

// Option configures Session.
type Option func(*Session)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger overrides obs.LogEvent.
func WithLogger(fn LogFunc) Option {
	return func(s *Session) {
		if fn != nil {
			s.log = fn
		}
	}
}

// Session is safe for concurrent use. The mutex is never held across a
// network call, so two concurrent restores may both reach the API.
type Session struct {
	client  apiclient.Requester
	storage Storage
	now     func() time.Time
	log     LogFunc

	mu               sync.Mutex
	token            string
	expiresAt        int64
	identity         *Identity
	hydrated         bool
	permissionsReady bool
}

// New builds an empty session. storage may be nil for a purely in-memory one.
func New(client apiclient.Requester, storage Storage, opts ...Option) *Session {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	s := &Session{
		client:  client,
		storage: storage,
		now:     time.Now,
		log:     obs.LogEvent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   *int64 `json:"expires_in"`
}

// Restore installs credentials from storage once per process. Later calls
// return the current identity without touching storage. A missing or expired
// token clears the session. The profile fetch that follows is best effort;
// when it fails the identity decoded from the token is kept.
func (s *Session) Restore(ctx context.Context) (*Identity, bool) {
	s.mu.Lock()
	if s.hydrated {
		id := s.identity.Clone()
		s.mu.Unlock()
		return id, id != nil
	}
	s.mu.Unlock()

	creds, err := s.storage.Load(ctx)
	if err != nil {
		s.log("warn", "session restore failed", map[string]any{"error": err.Error()})
		creds = Credentials{}
	}
	if creds.Token == "" || (creds.ExpiresAt > 0 && creds.ExpiresAt <= s.now().Unix()) {
		s.reset(ctx, "restore_empty")
		s.mu.Lock()
		s.hydrated = true
		s.mu.Unlock()
		return nil, false
	}

	optimistic := claimsIdentity(creds.Token)
	s.mu.Lock()
	s.token = creds.Token
	s.expiresAt = creds.ExpiresAt
	s.identity = optimistic
	s.mu.Unlock()

	if _, err := s.FetchProfile(ctx); err != nil {
		s.log("warn", "profile fetch after restore failed", map[string]any{"status": apiclient.StatusOf(err)})
	}

	id := s.Identity()
	actor := ""
	if id != nil {
		actor = id.ExternalID
	}
	_ = audit.LogEvent(audit.WithActor(ctx, actor), "session.restored", map[string]any{
		"authenticated": s.IsAuthenticated(),
		"expires_at":    creds.ExpiresAt,
	})
	return id, id != nil
}

// Login exchanges credentials for a token. The identity decoded from the
// token is available immediately; the profile fetch that follows is best
// effort.
func (s *Session) Login(ctx context.Context, email, password string) error {
	var resp loginResponse
	err := s.client.Fetch(ctx, "auth/login", apiclient.RequestOptions{
		Method:   http.MethodPost,
		Body:     map[string]string{"email": email, "password": password},
		SkipAuth: true,
	}, &resp)
	if err != nil {
		if apiclient.IsStatus(err, http.StatusUnauthorized) {
			s.reset(ctx, "login_unauthorized")
		}
		var apiErr *apiclient.Error
		if !errors.As(err, &apiErr) {
			return &apiclient.Error{Message: "Login failed", Err: err}
		}
		return err
	}
	if resp.AccessToken == "" {
		return &apiclient.Error{Status: http.StatusOK, Code: "missing_token", Message: "Login failed"}
	}

	var expiresAt int64
	if resp.ExpiresIn != nil {
		expiresAt = s.now().Unix() + max(0, *resp.ExpiresIn)
	}
	identity := claimsIdentity(resp.AccessToken)

	s.mu.Lock()
	s.token = resp.AccessToken
	s.expiresAt = expiresAt
	s.identity = identity
	s.hydrated = true
	s.permissionsReady = false
	s.mu.Unlock()

	if err := s.storage.Save(ctx, Credentials{Token: resp.AccessToken, ExpiresAt: expiresAt}); err != nil {
		s.log("warn", "persist credentials failed", map[string]any{"error": err.Error()})
	}

	actor := ""
	if identity != nil {
		actor = identity.ExternalID
	}
	_ = audit.LogEvent(audit.WithActor(ctx, actor), "session.login", map[string]any{
		"email":      email,
		"expires_at": expiresAt,
	})

	if _, err := s.FetchProfile(ctx); err != nil {
		s.log("warn", "profile fetch after login failed", map[string]any{"status": apiclient.StatusOf(err)})
	}
	return nil
}

// Logout clears memory and storage without contacting the API. The in-memory
// state is always cleared; a storage failure is returned.
func (s *Session) Logout(ctx context.Context) error {
	actor := ""
	if id := s.Identity(); id != nil {
		actor = id.ExternalID
	}
	err := s.reset(ctx, "logout")
	_ = audit.LogEvent(audit.WithActor(ctx, actor), "session.logout", nil)
	return err
}

// FetchProfile replaces the identity with the authoritative profile. Without
// a token it returns (nil, nil) and makes no call. A 401 clears the session.
func (s *Session) FetchProfile(ctx context.Context) (*Identity, error) {
	s.mu.Lock()
	token := s.token
	if token == "" {
		s.hydrated = true
		s.mu.Unlock()
		return nil, nil
	}
	s.mu.Unlock()

	var profile Identity
	err := s.client.Fetch(ctx, "profile", apiclient.RequestOptions{}, &profile)
	if err != nil {
		s.handleFailure(ctx, err)
		s.mu.Lock()
		s.hydrated = true
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrated = true
	if s.token != token {
		// signed out or replaced while the request was in flight
		return s.identity.Clone(), nil
	}
	s.identity = &profile
	s.permissionsReady = true
	return profile.Clone(), nil
}

// UpdateProfile changes name and email. Fields the response omits keep their
// previous values.
func (s *Session) UpdateProfile(ctx context.Context, name, email string) (*Identity, error) {
	token := s.Token()
	var resp Identity
	err := s.client.Fetch(ctx, "profile", apiclient.RequestOptions{
		Method: http.MethodPut,
		Body:   map[string]string{"name": name, "email": email},
	}, &resp)
	if err != nil {
		s.handleFailure(ctx, err)
		return nil, err
	}
	return s.mergeIdentity(token, &resp), nil
}

// UpdatePassword changes the password. The endpoint may answer without a
// body, in which case the identity is unchanged and nil is returned.
func (s *Session) UpdatePassword(ctx context.Context, current, next, confirm string) (*Identity, error) {
	token := s.Token()
	var resp *Identity
	err := s.client.Fetch(ctx, "profile/password", apiclient.RequestOptions{
		Method: http.MethodPut,
		Body: map[string]string{
			"current_password":      current,
			"password":              next,
			"password_confirmation": confirm,
		},
	}, &resp)
	if err != nil {
		s.handleFailure(ctx, err)
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return s.mergeIdentity(token, resp), nil
}

// mergeIdentity applies update only if the session that sent the request is
// still the current one.
func (s *Session) mergeIdentity(token string, update *Identity) *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" || s.token != token {
		return s.identity.Clone()
	}
	s.identity = s.identity.merge(update)
	return s.identity.Clone()
}

func (s *Session) handleFailure(ctx context.Context, err error) {
	if apiclient.IsStatus(err, http.StatusUnauthorized) {
		s.reset(ctx, "unauthorized")
	}
}

// reset clears every field and the durable pair.
func (s *Session) reset(ctx context.Context, reason string) error {
	s.mu.Lock()
	hadToken := s.token != ""
	s.token = ""
	s.expiresAt = 0
	s.identity = nil
	s.hydrated = false
	s.permissionsReady = false
	s.mu.Unlock()

	err := s.storage.Clear(ctx)
	if err != nil {
		s.log("warn", "clear credentials failed", map[string]any{"error": err.Error(), "reason": reason})
	}
	if hadToken && reason != "logout" {
		_ = audit.LogEvent(ctx, "session.cleared", map[string]any{"reason": reason})
	}
	return err
}

// Token implements apiclient.TokenSource.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// ExpiresAt returns the absolute expiry in epoch seconds; ok is false when no
// expiry is set.
func (s *Session) ExpiresAt() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt, s.expiresAt > 0
}

func (s *Session) IsAuthenticated() bool {
	return s.Token() != ""
}

// IsTokenExpired reports whether an expiry is set and has passed.
func (s *Session) IsTokenExpired() bool {
	exp, ok := s.ExpiresAt()
	return ok && exp <= s.now().Unix()
}

func (s *Session) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

func (s *Session) PermissionsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permissionsReady
}

// Identity returns a copy of the current identity, or nil.
func (s *Session) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.Clone()
}
