package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/designer-bridge/migrations"
)

const migrationsLogPrefix = "db:migrations"

// Migration is one forward-only schema change, identified by its file name.
type Migration struct {
	Name string
	SQL  string
}

// MigrationState reports whether a migration has been recorded as applied.
type MigrationState struct {
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

const createMigrationTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// LoadMigrations reads the .sql files of dir, sorted by name. When dir is
// empty or does not exist the migrations embedded in the binary are used.
func LoadMigrations(dir string) ([]Migration, error) {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return loadMigrationsFS(os.DirFS(dir), ".", dir)
		}
		slog.Debug(fmt.Sprintf("%s - %s not found, using embedded migrations", migrationsLogPrefix, dir))
	}
	return loadMigrationsFS(migrations.FS, ".", "embedded")
}

func loadMigrationsFS(fsys fs.FS, dir, label string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, label, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, name, err)
		}
		out = append(out, Migration{Name: name, SQL: string(data)})
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migrations from %s", migrationsLogPrefix, len(out), label))
	return out, nil
}

// RunMigrations applies every migration not yet recorded in
// schema_migrations. Each runs in its own transaction with its record.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migs []Migration) error {
	if _, err := pool.Exec(ctx, createMigrationTable); err != nil {
		return fmt.Errorf("%s - failed to create schema_migrations: %w", migrationsLogPrefix, err)
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	todo := pendingMigrations(migs, applied)
	slog.Info(fmt.Sprintf("%s - %d of %d migrations pending", migrationsLogPrefix, len(todo), len(migs)))

	for _, m := range todo {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("%s - begin %s: %w", migrationsLogPrefix, m.Name, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("%s - migration %s failed: %w", migrationsLogPrefix, m.Name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("%s - record %s: %w", migrationsLogPrefix, m.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("%s - commit %s: %w", migrationsLogPrefix, m.Name, err)
		}
		slog.Info(fmt.Sprintf("%s - Applied %s", migrationsLogPrefix, m.Name))
	}
	return nil
}

// MigrationStatus lists migs with their applied state. Before the first
// RunMigrations every migration is pending.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migs []Migration) ([]MigrationState, error) {
	var table *string
	if err := pool.QueryRow(ctx, `SELECT to_regclass('schema_migrations')::text`).Scan(&table); err != nil {
		return nil, fmt.Errorf("%s - failed to check schema: %w", migrationsLogPrefix, err)
	}
	applied := map[string]time.Time{}
	if table != nil {
		var err error
		if applied, err = appliedMigrations(ctx, pool); err != nil {
			return nil, err
		}
	}
	return migrationStates(migs, applied), nil
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]time.Time, error) {
	rows, err := pool.Query(ctx, `SELECT name, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read schema_migrations: %w", migrationsLogPrefix, err)
	}
	defer rows.Close()

	applied := map[string]time.Time{}
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return nil, fmt.Errorf("%s - scan: %w", migrationsLogPrefix, err)
		}
		applied[name] = at
	}
	return applied, rows.Err()
}

func pendingMigrations(migs []Migration, applied map[string]time.Time) []Migration {
	var out []Migration
	for _, m := range migs {
		if _, ok := applied[m.Name]; !ok {
			out = append(out, m)
		}
	}
	return out
}

func migrationStates(migs []Migration, applied map[string]time.Time) []MigrationState {
	out := make([]MigrationState, 0, len(migs))
	for _, m := range migs {
		st := MigrationState{Name: m.Name}
		if at, ok := applied[m.Name]; ok {
			st.Applied = true
			st.AppliedAt = &at
		}
		out = append(out, st)
	}
	return out
}

// ErrForwardOnly is returned for rollback requests.
var ErrForwardOnly = errors.New("db: migrations are forward-only; restore a backup to roll back")
