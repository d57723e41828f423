// Package events defines editor session lifecycle events and their publishers.
package events

// SessionEventType names a lifecycle transition of an editor session.
type SessionEventType string

// Session event types.
const (
	// EventReady is emitted once, when the dispatcher becomes ready.
	EventReady SessionEventType = "ready"
	// EventFlushed is emitted after the pending queue was drained.
	EventFlushed SessionEventType = "flushed"
	// EventDropped is emitted when a ready dispatcher discards an envelope it has no handler for.
	EventDropped SessionEventType = "dropped"
	// EventClosed is emitted when the editor shuts down.
	EventClosed SessionEventType = "closed"
)

// SessionEvent describes a lifecycle transition. It never carries envelope
// payloads, so workflow definitions do not leave the editor through it.
type SessionEvent struct {
	SessionID       string           `json:"sessionId"`
	Type            SessionEventType `json:"type"`
	Embedded        bool             `json:"embedded"`
	ProtocolVersion string           `json:"protocolVersion,omitempty"`
	Pending         int              `json:"pending"`
	Kind            string           `json:"kind,omitempty"`
	Timestamp       string           `json:"timestamp"`
}
