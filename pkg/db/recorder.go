package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/designer-bridge/pkg/events"
)

const recorderLogPrefix = "db:recorder"

// EventStore persists session events.
type EventStore interface {
	RecordEvent(ctx context.Context, event *events.SessionEvent) error
}

// Recorder is an events.EventPublisher that writes session events to the
// audit trail.
type Recorder struct {
	store EventStore
}

var _ events.EventPublisher = (*Recorder)(nil)

// NewRecorder creates a Recorder.
func NewRecorder(store EventStore) *Recorder {
	return &Recorder{store: store}
}

// PublishSession records event.
func (r *Recorder) PublishSession(ctx context.Context, event *events.SessionEvent) error {
	if event == nil || event.SessionID == "" {
		return fmt.Errorf("%s - event without session id", recorderLogPrefix)
	}
	if err := r.store.RecordEvent(ctx, event); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to record %s for %s: %v", recorderLogPrefix, event.Type, event.SessionID, err))
		return err
	}
	return nil
}
