package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsTable = "skillradar_schema_migrations"
	legacyTable     = "skills_daily"
)

// Initialize brings the schema to the latest version and folds a legacy
// one-snapshot-per-day table into the snapshot table. Safe to call on every start.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	if err := s.migrateSchema(); err != nil {
		return storageErr("migrate schema", err)
	}
	if err := s.migrateLegacy(ctx); err != nil {
		return storageErr("migrate legacy table", err)
	}
	return nil
}

func (s *SQLiteStore) migrateSchema() error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("access migrations directory: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	defer src.Close()

	driver, err := sqlite.WithInstance(s.db.DB, &sqlite.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}

	// migrate.Close would close the shared *sql.DB, so the instance is dropped instead.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema is dirty at version %d", version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// migrateLegacy copies skills_daily rows into skills_snapshot at "<date> 00:00:00"
// unless the snapshot table already holds data, then drops skills_daily.
func (s *SQLiteStore) migrateLegacy(ctx context.Context) error {
	var found int
	if err := s.db.GetContext(ctx, &found,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", legacyTable); err != nil {
		return fmt.Errorf("look up %s: %w", legacyTable, err)
	}
	if found == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.GetContext(ctx, &existing, "SELECT COUNT(*) FROM skills_snapshot"); err != nil {
		return fmt.Errorf("count snapshots: %w", err)
	}

	if existing == 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO skills_snapshot
				(snapshot_time, date, rank, name, owner, installs, installs_delta, installs_rate, rank_delta, url)
			SELECT date || ' 00:00:00', date, rank, name, COALESCE(owner, ''), installs,
				COALESCE(installs_delta, 0), COALESCE(installs_rate, 0), COALESCE(rank_delta, 0), COALESCE(url, '')
			FROM skills_daily
		`)
		if err != nil {
			return fmt.Errorf("copy %s: %w", legacyTable, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO skills_history (skill_name, date, rank, installs)
			SELECT name, date, rank, installs FROM skills_daily
		`); err != nil {
			return fmt.Errorf("backfill history from %s: %w", legacyTable, err)
		}
		moved, _ := res.RowsAffected()
		s.log.Info("migrated legacy snapshots", "table", legacyTable, "rows", moved)
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE "+legacyTable); err != nil {
		return fmt.Errorf("drop %s: %w", legacyTable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Info("dropped legacy table", "table", legacyTable)
	return nil
}
