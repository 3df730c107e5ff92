// Package app wires the console's components into one explicitly constructed
// context.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"greenlabel.or.id/admin/internal/apiclient"
	"greenlabel.or.id/admin/internal/authz"
	"greenlabel.or.id/admin/internal/config"
	"greenlabel.or.id/admin/internal/guard"
	"greenlabel.or.id/admin/internal/migrate"
	"greenlabel.or.id/admin/internal/obs"
	"greenlabel.or.id/admin/internal/session"
	"greenlabel.or.id/admin/internal/store"
)

// App holds one console's session, gate, guard and stores.
type App struct {
	Config   *config.Config
	Client   *apiclient.Client
	Session  *session.Session
	Gate     *authz.Gate
	Guard    *guard.Guard
	Users    *store.Users
	RBAC     *store.RBAC
	Catalog  *store.Certifications
	Products *store.Products
	Metrics  *obs.ClientMetrics
}

// Option configures New.
type Option func(*options)

type options struct {
	httpClient *http.Client
	registerer prometheus.Registerer
	session    []session.Option
}

// WithHTTPClient overrides the transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithRegisterer registers the client metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithSessionOptions passes options through to session.New.
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *options) { o.session = append(o.session, opts...) }
}

// New builds the application context. A nil storage keeps credentials in
// memory.
func New(cfg *config.Config, storage session.Storage, opts ...Option) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	metrics := obs.NewClientMetrics(o.registerer)
	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	client := apiclient.New(cfg.APIBase,
		apiclient.WithHTTPClient(hc),
		apiclient.WithRateLimit(cfg.RatePerSec, cfg.RateBurst),
		apiclient.WithMetrics(metrics),
	)

	sess := session.New(client, storage, o.session...)
	client.SetTokenSource(sess)

	rbac := store.NewRBAC(client)
	certs := store.NewCertifications(client)

	return &App{
		Config:  cfg,
		Client:  client,
		Session: sess,
		Gate:    authz.New(sess),
		Guard: guard.New(sess,
			guard.WithLoginPath(cfg.LoginPath),
			guard.WithProtectedPrefixes(cfg.ProtectedPrefix),
		),
		Users:    store.NewUsers(client, rbac),
		RBAC:     rbac,
		Catalog:  certs,
		Products: store.NewProducts(certs),
		Metrics:  metrics,
	}
}

// OpenStorage opens the credential backend selected by cfg.Storage. The
// returned close function releases database or redis connections.
func OpenStorage(ctx context.Context, cfg *config.Config) (session.Storage, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Storage {
	case config.StorageMemory:
		return session.NewMemoryStorage(), noop, nil
	case config.StorageFile:
		return session.NewFileStorage(cfg.StoragePath), noop, nil
	case config.StorageSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.StoragePath), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create storage dir: %w", err)
		}
		s, err := session.OpenSQLStorage(ctx, migrate.SQLite, cfg.StoragePath, session.DefaultCredentialName)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoragePostgres:
		s, err := session.OpenSQLStorage(ctx, migrate.Postgres, cfg.PostgresDSN, session.DefaultCredentialName)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StorageRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return session.NewRedisStorage(rdb, cfg.RedisPrefix, session.DefaultCredentialName), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage %q", cfg.Storage)
	}
}
