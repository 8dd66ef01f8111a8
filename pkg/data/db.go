package data

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	DataFileName string = "data.db"

	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	migrationDir = "sql"

	createSchemaVersionSQL = `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	)`
	selectSchemaVersionSQL = `SELECT COALESCE(MAX(version), 0) FROM schema_version`
	insertSchemaVersionSQL = `INSERT INTO schema_version (version) VALUES (?)`
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// Store persists predictions in SQLite or PostgreSQL.
type Store struct {
	db     *sql.DB
	driver string
}

// Open opens the database identified by dsn and applies pending migrations.
// DSNs starting with postgres:// or postgresql:// use PostgreSQL; anything
// else is treated as a SQLite file path.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("dsn not specified")
	}

	driver := driverFor(dsn)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}

	// sqlite allows a single writer
	if driver == driverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s database", driver)
	}

	s := &Store{db: db, driver: driver}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func driverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres
	}
	return driverSQLite
}

// Driver returns the name of the SQL driver backing the store.
func (s *Store) Driver() string {
	return s.driver
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate applies the embedded migrations newer than the recorded schema
// version. Each file is named NNN_description.sql and applied in order.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}

	if _, err := s.db.ExecContext(ctx, createSchemaVersionSQL); err != nil {
		return errors.Wrap(err, "failed to create schema version table")
	}

	var current int
	if err := s.db.QueryRowContext(ctx, selectSchemaVersionSQL).Scan(&current); err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}

	migrations, err := listMigrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		b, err := f.ReadFile(path.Join(migrationDir, m.name))
		if err != nil {
			return errors.Wrapf(err, "failed to read migration: %s", m.name)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "failed to begin transaction")
		}

		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to apply migration: %s", m.name)
		}

		if _, err := tx.ExecContext(ctx, s.rebind(insertSchemaVersionSQL), m.version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to record migration: %s", m.name)
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "failed to commit migration: %s", m.name)
		}

		slog.Debug("migration applied", "name", m.name, "version", m.version, "driver", s.driver)
	}

	return nil
}

type migration struct {
	version int
	name    string
}

func listMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(f, migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list migrations")
	}

	list := make([]migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, errors.Errorf("migration name missing version prefix: %s", e.Name())
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid migration version: %s", e.Name())
		}
		list = append(list, migration{version: v, name: e.Name()})
	}

	slices.SortFunc(list, func(a, b migration) int { return a.version - b.version })
	return list, nil
}

// rebind converts ? placeholders to the $N form PostgreSQL expects.
func (s *Store) rebind(query string) string {
	if s.driver != driverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Contains checks for val in list
func Contains[T comparable](list []T, val T) bool {
	return slices.Contains(list, val)
}
