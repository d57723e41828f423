package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

const ensureLogPrefix = "db:ensure"

// safeDBName matches allowed database names (alphanumeric and underscore only).
var safeDBName = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// DatabaseURLFor returns databaseURL pointing at database name instead.
// Credentials, host and query (e.g. sslmode) are kept.
func DatabaseURLFor(databaseURL, name string) (string, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("%s - DATABASE_URL is required", ensureLogPrefix)
	}
	if !safeDBName.MatchString(name) {
		return "", fmt.Errorf("%s - database name %q contains invalid characters", ensureLogPrefix, name)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	u.Path = "/" + name
	return u.String(), nil
}

// splitDatabaseURL returns the URL of the maintenance database on the same
// server and the database name databaseURL points at.
func splitDatabaseURL(databaseURL string) (adminURL, name string, err error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	name = strings.TrimSpace(strings.TrimPrefix(u.Path, "/"))
	if name == "" {
		return "", "", fmt.Errorf("%s - database name empty in URL", ensureLogPrefix)
	}
	if !safeDBName.MatchString(name) {
		return "", "", fmt.Errorf("%s - database name %q contains invalid characters", ensureLogPrefix, name)
	}
	admin := *u
	admin.Path = "/postgres"
	return admin.String(), name, nil
}

// EnsureDatabase creates the database databaseURL points at when it is
// missing, then checks it accepts connections.
func EnsureDatabase(ctx context.Context, databaseURL string) error {
	adminURL, name, err := splitDatabaseURL(databaseURL)
	if err != nil {
		return err
	}

	created, err := createDatabaseIfMissing(ctx, adminURL, name)
	if err != nil {
		return err
	}
	if created {
		slog.Info(fmt.Sprintf("%s - Created database %q", ensureLogPrefix, name))
	}

	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("%s - database %q not reachable: %w", ensureLogPrefix, name, err)
	}
	pool.Close()
	slog.Info(fmt.Sprintf("%s - Database %q ready", ensureLogPrefix, name))
	return nil
}

func createDatabaseIfMissing(ctx context.Context, adminURL, name string) (bool, error) {
	cfg, err := pgx.ParseConfig(adminURL)
	if err != nil {
		return false, fmt.Errorf("%s - failed to parse postgres URL: %w", ensureLogPrefix, err)
	}
	// CREATE DATABASE cannot run inside the implicit transaction of an extended-protocol statement.
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return false, fmt.Errorf("%s - failed to connect to postgres: %w", ensureLogPrefix, err)
	}
	defer conn.Close(ctx)

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s - failed to check database: %w", ensureLogPrefix, err)
	}
	if exists {
		return false, nil
	}
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+quoteIdent(name)); err != nil {
		return false, fmt.Errorf("%s - CREATE DATABASE failed: %w", ensureLogPrefix, err)
	}
	return true, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
