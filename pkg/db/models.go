package db

import "time"

// Session status values.
const (
	SessionWaiting = "waiting"
	SessionReady   = "ready"
	SessionClosed  = "closed"
)

// Session represents a row in the editor_sessions table.
type Session struct {
	SessionID       string     `json:"sessionId"`
	Embedded        bool       `json:"embedded"`
	ProtocolVersion *string    `json:"protocolVersion,omitempty"`
	Status          string     `json:"status"`
	ReadyAt         *time.Time `json:"readyAt,omitempty"`
	Flushed         int        `json:"flushed"`
	Dropped         int        `json:"dropped"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`
	Created         time.Time  `json:"created"`
	Modified        time.Time  `json:"modified"`
}

// SessionEventRow represents a row in the session_events table.
type SessionEventRow struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Type      string    `json:"type"`
	Kind      *string   `json:"kind,omitempty"`
	Pending   int       `json:"pending"`
	Occurred  time.Time `json:"occurred"`
}
