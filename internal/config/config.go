// Package config loads console settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Storage backends for the durable session credentials.
const (
	StorageFile     = "file"
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config holds everything needed to build the application context.
type Config struct {
	APIBase string `env:"GLI_API_BASE,default=http://localhost:8080/api"`

	Storage     string `env:"GLI_STORAGE,default=file"`
	StoragePath string `env:"GLI_STORAGE_PATH"`
	PostgresDSN string `env:"GLI_PG_DSN"`
	RedisAddr   string `env:"GLI_REDIS_ADDR,default=localhost:6379"`
	RedisPrefix string `env:"GLI_REDIS_PREFIX,default=gli:session:"`

	HTTPTimeout time.Duration `env:"GLI_HTTP_TIMEOUT,default=15s"`
	RatePerSec  float64       `env:"GLI_RATE_PER_SEC,default=0"`
	RateBurst   int           `env:"GLI_RATE_BURST,default=1"`

	LoginPath       string `env:"GLI_LOGIN_PATH,default=/login"`
	ProtectedPrefix string `env:"GLI_PROTECTED_PREFIX,default=/admin"`
}

// Load reads .env (if present) and decodes the environment into Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no environment is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	c.APIBase = strings.TrimSpace(c.APIBase)
	if c.APIBase == "" {
		c.APIBase = "http://localhost:8080/api"
	}
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	if c.Storage == "" {
		c.Storage = StorageFile
	}
	if c.Storage == StorageFile && c.StoragePath == "" {
		c.StoragePath = defaultStoragePath("session.json")
	}
	if c.Storage == StorageSQLite && c.StoragePath == "" {
		c.StoragePath = defaultStoragePath("session.db")
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.RedisPrefix == "" {
		c.RedisPrefix = "gli:session:"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if c.ProtectedPrefix == "" {
		c.ProtectedPrefix = "/admin"
	}
}

// Validate rejects unusable combinations.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBase)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid GLI_API_BASE %q", c.APIBase)
	}
	switch c.Storage {
	case StorageFile, StorageSQLite:
		if c.StoragePath == "" {
			return fmt.Errorf("GLI_STORAGE_PATH is required for %s storage", c.Storage)
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return errors.New("GLI_PG_DSN is required for postgres storage")
		}
	case StorageRedis, StorageMemory:
	default:
		return fmt.Errorf("unsupported GLI_STORAGE %q", c.Storage)
	}
	if c.RatePerSec < 0 {
		return errors.New("GLI_RATE_PER_SEC must not be negative")
	}
	if !strings.HasPrefix(c.LoginPath, "/") || !strings.HasPrefix(c.ProtectedPrefix, "/") {
		return errors.New("GLI_LOGIN_PATH and GLI_PROTECTED_PREFIX must start with /")
	}
	return nil
}

func defaultStoragePath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "gli-admin", name)
}
