// Package mockapi is an in-memory GLI backend speaking the envelope protocol.
// It serves local front-end work and end-to-end tests of the console.
package mockapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/crypto/bcrypt"

	"greenlabel.or.id/admin/internal/authz"
	"greenlabel.or.id/admin/internal/obs"
)

const (
	defaultTokenTTL = time.Hour
	defaultSecret   = "gli-mockapi-dev-secret"
)

// Server holds the backend state and builds the HTTP handler.
type Server struct {
	state      *state
	tokens     *tokenIssuer
	bcryptCost int

	origins    []string
	ratePerSec float64
	rateBurst  int
	seed       bool
	now        func() time.Time
}

// Option configures Server.
type Option func(*Server)

// WithSecret sets the HS256 signing key.
func WithSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.tokens.secret = []byte(secret)
		}
	}
}

// WithTokenTTL sets the access token lifetime reported as expires_in.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.tokens.ttl = ttl
		}
	}
}

// WithAllowedOrigins sets the CORS origins. Empty allows the local dev
// servers only.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithRateLimit enables a per-client token bucket. perSecond <= 0 disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.ratePerSec = perSecond
		s.rateBurst = burst
	}
}

// WithBcryptCost lowers the hashing cost, mostly for tests.
func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.bcryptCost = cost }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithoutSeed starts with an empty backend.
func WithoutSeed() Option {
	return func(s *Server) { s.seed = false }
}

// New builds a server, seeded with the demo directory and catalog unless
// WithoutSeed is given.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		tokens:     &tokenIssuer{secret: []byte(defaultSecret), ttl: defaultTokenTTL},
		bcryptCost: bcrypt.DefaultCost,
		seed:       true,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tokens.now = s.now
	s.state = newState(s.now)
	if s.seed {
		if err := s.seedDemo(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Handler returns the router wrapped in metrics, logging, CORS and rate
// limiting.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)

	api.HandleFunc("/brand-categories", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/brands", s.handleBrands).Methods(http.MethodGet)
	api.HandleFunc("/products", s.handleProducts).Methods(http.MethodGet)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.authenticate)
	authed.HandleFunc("/profile", s.handleProfile).Methods(http.MethodGet)
	authed.HandleFunc("/profile", s.handleUpdateProfile).Methods(http.MethodPut)
	authed.HandleFunc("/profile/password", s.handleUpdatePassword).Methods(http.MethodPut)

	authed.HandleFunc("/users", s.require(authz.PermUserView, s.handleListUsers)).Methods(http.MethodGet)
	authed.HandleFunc("/users/{xid}", s.require(authz.PermUserUpdate, s.handleUpdateUser)).Methods(http.MethodPut)
	authed.HandleFunc("/users/{xid}", s.require(authz.PermUserDelete, s.handleDeleteUser)).Methods(http.MethodDelete)

	authed.HandleFunc("/rbac/roles", s.require(authz.PermRoleView, s.handleListRoles)).Methods(http.MethodGet)
	authed.HandleFunc("/rbac/roles", s.require(authz.PermRoleManage, s.handleCreateRole)).Methods(http.MethodPost)
	authed.HandleFunc("/rbac/permissions", s.require(authz.PermPermissionView, s.handleListPermissions)).Methods(http.MethodGet)
	authed.HandleFunc("/rbac/permissions", s.require(authz.PermPermissionManage, s.handleCreatePermission)).Methods(http.MethodPost)
	authed.HandleFunc("/rbac/roles/{role}/permissions", s.require(authz.PermPermissionManage, s.handleAssignPermission)).Methods(http.MethodPost)
	authed.HandleFunc("/rbac/users/{xid}/roles", s.require(authz.PermRoleManage, s.handleAssignRole)).Methods(http.MethodPost)

	authed.HandleFunc("/product-certifications", s.require(authz.PermCertificationManage, s.handleCreateCertification)).Methods(http.MethodPost)
	authed.HandleFunc("/product-certifications/{id}", s.require(authz.PermCertificationManage, s.handleUpdateCertification)).Methods(http.MethodPut)
	authed.HandleFunc("/product-certifications/{id}", s.require(authz.PermCertificationManage, s.handleDeleteCertification)).Methods(http.MethodDelete)

	var h http.Handler = r
	if s.ratePerSec > 0 {
		h = rateLimit(h, s.ratePerSec, s.rateBurst)
	}
	h = s.corsHandler().Handler(h)
	h = logging(h)
	return obs.Instrument(h)
}

func (s *Server) corsHandler() *cors.Cors {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         600,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gli-mockapi",
		"time":    s.now().UTC().Format(time.RFC3339),
	})
}
