package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"greenlabel.or.id/admin/internal/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultCredentialName is the row key used when none is configured.
const DefaultCredentialName = "default"

// SQLStorage keeps credentials in the client_credentials table, one row per
// profile name.
type SQLStorage struct {
	db      *sql.DB
	name    string
	dialect migrate.Dialect
	now     func() time.Time
}

// NewSQLStorage wraps an open database. name selects the row.
func NewSQLStorage(db *sql.DB, dialect migrate.Dialect, name string) *SQLStorage {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultCredentialName
	}
	return &SQLStorage{db: db, name: name, dialect: dialect, now: time.Now}
}

// OpenSQLStorage opens dsn with the pgx or sqlite driver and applies the
// credential migrations.
func OpenSQLStorage(ctx context.Context, dialect migrate.Dialect, dsn, name string) (*SQLStorage, error) {
	driver := "pgx"
	if dialect == migrate.SQLite {
		driver = "sqlite"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s := NewSQLStorage(db, dialect, name)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrator returns a manager over the embedded credential migrations.
func (s *SQLStorage) Migrator() *migrate.Manager {
	return migrate.NewManager(s.db, migrations, "migrations", s.dialect)
}

// Migrate creates the credential table when missing.
func (s *SQLStorage) Migrate(ctx context.Context) error {
	if err := s.Migrator().Up(ctx); err != nil {
		return fmt.Errorf("migrate credentials: %w", err)
	}
	return nil
}

func (s *SQLStorage) Close() error { return s.db.Close() }

func (s *SQLStorage) Load(ctx context.Context) (Credentials, error) {
	var (
		token   string
		expires sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`select token, expires_at from client_credentials where name = `+s.dialect.Placeholder(1),
		s.name).Scan(&token, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return Credentials{Token: token, ExpiresAt: expires.Int64}, nil
}

func (s *SQLStorage) Save(ctx context.Context, creds Credentials) error {
	expires := sql.NullInt64{Int64: creds.ExpiresAt, Valid: creds.ExpiresAt > 0}
	p := s.dialect.Placeholder
	query := fmt.Sprintf(`insert into client_credentials(name, token, expires_at, updated_at)
		values (%s, %s, %s, %s)
		on conflict (name) do update set token = excluded.token, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		p(1), p(2), p(3), p(4))
	if _, err := s.db.ExecContext(ctx, query, s.name, creds.Token, expires, s.now().UTC()); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *SQLStorage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`delete from client_credentials where name = `+s.dialect.Placeholder(1), s.name); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
