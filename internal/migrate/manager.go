// Package migrate applies the embedded SQL migrations of the credential store
// to PostgreSQL or SQLite.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

const defaultTable = "credential_migrations"

// ErrNothingApplied is returned by Down when no migration is recorded.
var ErrNothingApplied = errors.New("migrate: no migrations applied")

// Dialect selects placeholder syntax.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// Migration is one versioned step read from <version>_<name>.up.sql and the
// optional matching .down.sql.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// Record is a row of the bookkeeping table.
type Record struct {
	Version string
	Name    string
}

func (r Record) String() string { return r.Version + "_" + r.Name }

// Load reads every migration under dir, ordered by version. A down script
// without its up script, or two steps sharing a version, is an error.
func Load(files fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(files, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	byVersion := map[string]*Migration{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stem, up := strings.CutSuffix(e.Name(), ".up.sql")
		if !up {
			var down bool
			if stem, down = strings.CutSuffix(e.Name(), ".down.sql"); !down {
				continue
			}
		}
		version, name, ok := strings.Cut(stem, "_")
		if !ok || version == "" {
			return nil, fmt.Errorf("migrate: %s: want <version>_<name>", e.Name())
		}
		body, err := fs.ReadFile(files, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		} else if m.Name != name {
			return nil, fmt.Errorf("migrate: version %s used by %s and %s", version, m.Name, name)
		}
		if up {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if strings.TrimSpace(m.Up) == "" {
			return nil, fmt.Errorf("migrate: version %s has no up script", m.Version)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}

// Manager runs migrations against db and records them in its table.
type Manager struct {
	db      *sql.DB
	files   fs.FS
	dir     string
	dialect Dialect
	table   string
	now     func() time.Time
}

// Option configures Manager.
type Option func(*Manager)

// WithTable overrides the bookkeeping table.
func WithTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.table = name
		}
	}
}

// NewManager constructs a Manager reading migrations from dir inside files.
func NewManager(db *sql.DB, files fs.FS, dir string, dialect Dialect, opts ...Option) *Manager {
	m := &Manager{
		db:      db,
		files:   files,
		dir:     dir,
		dialect: dialect,
		table:   defaultTable,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies every migration newer than the recorded ones. Each step and its
// record commit together.
func (m *Manager) Up(ctx context.Context) error {
	pending, err := m.Pending(ctx)
	if err != nil {
		return err
	}
	insert := fmt.Sprintf(`insert into %s(version, name, applied_at) values (%s, %s, %s)`,
		m.table, m.dialect.Placeholder(1), m.dialect.Placeholder(2), m.dialect.Placeholder(3))
	for _, mig := range pending {
		err := m.inTx(ctx, mig.Up, insert, mig.Version, mig.Name, m.now().UTC())
		if err != nil {
			return fmt.Errorf("apply %s_%s: %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Down reverts the latest recorded migration.
func (m *Manager) Down(ctx context.Context) error {
	applied, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return ErrNothingApplied
	}
	last := applied[len(applied)-1]

	all, err := Load(m.files, m.dir)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(all, func(mig Migration) bool { return mig.Version == last.Version })
	if i < 0 || strings.TrimSpace(all[i].Down) == "" {
		return fmt.Errorf("migrate: no down script for %s", last)
	}
	remove := fmt.Sprintf(`delete from %s where version = %s`, m.table, m.dialect.Placeholder(1))
	if err := m.inTx(ctx, all[i].Down, remove, last.Version); err != nil {
		return fmt.Errorf("revert %s: %w", last, err)
	}
	return nil
}

// Status lists the recorded migrations by version.
func (m *Manager) Status(ctx context.Context) ([]Record, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select version, name from %s order by version`, m.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Version, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Pending lists migrations not yet recorded, in apply order.
func (m *Manager) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	all, err := Load(m.files, m.dir)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(mig Migration) bool {
		return slices.ContainsFunc(applied, func(r Record) bool { return r.Version == mig.Version })
	}), nil
}

func (m *Manager) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`create table if not exists %s (
	version text primary key,
	name text not null,
	applied_at timestamp not null
)`, m.table))
	return err
}

// inTx runs script followed by the bookkeeping statement in one transaction.
func (m *Manager) inTx(ctx context.Context, script, bookkeeping string, args ...any) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range statements(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// statements splits a script on semicolons outside single quotes, dropping
// "--" comments and empty statements.
func statements(script string) []string {
	var (
		out     []string
		b       strings.Builder
		quoted  bool
		comment bool
	)
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	for i, r := range script {
		switch {
		case comment:
			if r != '\n' {
				continue
			}
			comment = false
		case !quoted && r == '-' && strings.HasPrefix(script[i:], "--"):
			comment = true
			continue
		case r == '\'':
			quoted = !quoted
		case r == ';' && !quoted:
			flush()
			continue
		}
		b.WriteRune(r)
	}
	flush()
	return out
}
