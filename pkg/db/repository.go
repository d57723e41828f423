package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/designer-bridge/pkg/events"
)

const repoLogPrefix = "db:repository"

// DefaultListLimit caps ListSessions when no limit is given.
const DefaultListLimit = 50

// Repository provides database access for the session audit trail.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordEvent upserts the session row for event and appends the event, in
// one transaction.
func (r *Repository) RecordEvent(ctx context.Context, event *events.SessionEvent) error {
	slog.Debug(fmt.Sprintf("%s - RecordEvent session=%s type=%s", repoLogPrefix, event.SessionID, event.Type))

	occurred := eventTime(event.Timestamp)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s - begin failed: %w", repoLogPrefix, err)
	}
	defer tx.Rollback(ctx)

	var protocolVersion *string
	if event.ProtocolVersion != "" {
		protocolVersion = &event.ProtocolVersion
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO editor_sessions (session_id, embedded, protocol_version, created, modified)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (session_id) DO UPDATE
		 SET embedded = EXCLUDED.embedded,
		     protocol_version = COALESCE(EXCLUDED.protocol_version, editor_sessions.protocol_version),
		     modified = EXCLUDED.modified`,
		event.SessionID, event.Embedded, protocolVersion, occurred)
	if err != nil {
		return fmt.Errorf("%s - upsert session failed: %w", repoLogPrefix, err)
	}

	switch event.Type {
	case events.EventReady:
		_, err = tx.Exec(ctx,
			`UPDATE editor_sessions SET status = $2, ready_at = COALESCE(ready_at, $3) WHERE session_id = $1`,
			event.SessionID, SessionReady, occurred)
	case events.EventFlushed:
		_, err = tx.Exec(ctx,
			`UPDATE editor_sessions SET flushed = flushed + $2 WHERE session_id = $1`,
			event.SessionID, event.Pending)
	case events.EventDropped:
		_, err = tx.Exec(ctx,
			`UPDATE editor_sessions SET dropped = dropped + 1 WHERE session_id = $1`,
			event.SessionID)
	case events.EventClosed:
		_, err = tx.Exec(ctx,
			`UPDATE editor_sessions SET status = $2, closed_at = $3 WHERE session_id = $1`,
			event.SessionID, SessionClosed, occurred)
	}
	if err != nil {
		return fmt.Errorf("%s - update session for %s failed: %w", repoLogPrefix, event.Type, err)
	}

	var kind *string
	if event.Kind != "" {
		kind = &event.Kind
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO session_events (session_id, type, kind, pending, occurred)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.SessionID, string(event.Type), kind, event.Pending, occurred)
	if err != nil {
		return fmt.Errorf("%s - insert event failed: %w", repoLogPrefix, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s - commit failed: %w", repoLogPrefix, err)
	}
	return nil
}

// GetSession finds a session by id. It returns nil, nil when none exists.
func (r *Repository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT session_id, embedded, protocol_version, status, ready_at, flushed, dropped, closed_at, created, modified
		 FROM editor_sessions
		 WHERE session_id = $1`, sessionID)

	s, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - GetSession failed: %w", repoLogPrefix, err)
	}
	return s, nil
}

// ListSessions returns the most recently modified sessions.
func (r *Repository) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.pool.Query(ctx,
		`SELECT session_id, embedded, protocol_version, status, ready_at, flushed, dropped, closed_at, created, modified
		 FROM editor_sessions
		 ORDER BY modified DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - ListSessions failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s - scan session: %w", repoLogPrefix, err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// ListEvents returns a session's events in the order they occurred.
func (r *Repository) ListEvents(ctx context.Context, sessionID string) ([]SessionEventRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, type, kind, pending, occurred
		 FROM session_events
		 WHERE session_id = $1
		 ORDER BY occurred, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s - ListEvents failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []SessionEventRow
	for rows.Next() {
		var e SessionEventRow
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &e.Kind, &e.Pending, &e.Occurred); err != nil {
			return nil, fmt.Errorf("%s - scan event: %w", repoLogPrefix, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.SessionID, &s.Embedded, &s.ProtocolVersion, &s.Status, &s.ReadyAt,
		&s.Flushed, &s.Dropped, &s.ClosedAt, &s.Created, &s.Modified)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// eventTime parses an RFC 3339 event timestamp, falling back to now.
func eventTime(ts string) time.Time {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
