package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const clearLogPrefix = "db:clear"

// Clear removes every session and its events, returning how many sessions
// were removed. The schema and applied migrations are kept.
func (r *Repository) Clear(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM editor_sessions`)
	if err != nil {
		return 0, fmt.Errorf("%s - clear failed: %w", clearLogPrefix, err)
	}
	if _, err := r.pool.Exec(ctx, `ALTER SEQUENCE session_events_id_seq RESTART`); err != nil {
		return 0, fmt.Errorf("%s - reset event ids: %w", clearLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Cleared %d sessions", clearLogPrefix, tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// PruneClosed removes sessions closed more than age ago. Their events go
// with them.
func (r *Repository) PruneClosed(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, fmt.Errorf("%s - prune age must be positive, got %v", clearLogPrefix, age)
	}
	cutoff := time.Now().UTC().Add(-age)
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM editor_sessions WHERE status = $1 AND closed_at < $2`, SessionClosed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s - prune failed: %w", clearLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Pruned %d sessions closed before %s", clearLogPrefix, tag.RowsAffected(), cutoff.Format(time.RFC3339)))
	return tag.RowsAffected(), nil
}
