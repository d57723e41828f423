package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/morezero/designer-bridge/pkg/events"
)

const asyncRecorderLogPrefix = "db:async_recorder"

// DefaultAuditQueueSize bounds the events waiting for the audit writer.
const DefaultAuditQueueSize = 256

// ErrAuditQueueFull is returned when an event is dropped because the audit
// writer is behind.
var ErrAuditQueueFull = errors.New("db: audit queue full")

// AsyncRecorder hands session events to a single background writer so that
// publishing never waits on the database. Events are recorded in publish
// order. When the queue is full the event is dropped and counted.
type AsyncRecorder struct {
	recorder *Recorder
	queue    chan *events.SessionEvent
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	dropped  atomic.Int64

	mu     sync.Mutex
	closed bool
}

var _ events.EventPublisher = (*AsyncRecorder)(nil)

// NewAsyncRecorder starts the writer. size <= 0 uses DefaultAuditQueueSize.
func NewAsyncRecorder(store EventStore, size int) *AsyncRecorder {
	if size <= 0 {
		size = DefaultAuditQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &AsyncRecorder{
		recorder: NewRecorder(store),
		queue:    make(chan *events.SessionEvent, size),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	go r.run()
	return r
}

// PublishSession queues event and returns without touching the store.
func (r *AsyncRecorder) PublishSession(_ context.Context, event *events.SessionEvent) error {
	if event == nil || event.SessionID == "" {
		return fmt.Errorf("%s - event without session id", asyncRecorderLogPrefix)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("%s - recorder closed", asyncRecorderLogPrefix)
	}
	select {
	case r.queue <- event:
		return nil
	default:
		n := r.dropped.Add(1)
		slog.Warn(fmt.Sprintf("%s - queue full, dropped %s for %s (%d dropped)", asyncRecorderLogPrefix, event.Type, event.SessionID, n))
		return ErrAuditQueueFull
	}
}

// Dropped returns how many events were discarded on a full queue.
func (r *AsyncRecorder) Dropped() int64 { return r.dropped.Load() }

// Close stops accepting events and waits for queued ones to be written.
// If ctx ends first, in-flight writes are cancelled and the rest discarded.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-r.done
		return fmt.Errorf("%s - drain interrupted: %w", asyncRecorderLogPrefix, ctx.Err())
	}
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for event := range r.queue {
		if r.ctx.Err() != nil {
			continue
		}
		// Recorder logs failures; the writer keeps going.
		_ = r.recorder.PublishSession(r.ctx, event)
	}
}
