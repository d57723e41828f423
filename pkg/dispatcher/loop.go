package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/designer-bridge/pkg/protocol"
)

const loopLogPrefix = "dispatcher:loop"

// ErrLoopStopped is returned by Do once the loop has stopped.
var ErrLoopStopped = errors.New("dispatcher: loop stopped")

// DefaultLoopBuffer is the default number of queued operations.
const DefaultLoopBuffer = 1024

// Loop owns a Dispatcher and runs every operation on it from one goroutine,
// in submission order. Transport callbacks, handler registration and status
// reads all go through the loop.
type Loop struct {
	d    *Dispatcher
	ops  chan func(context.Context)
	done chan struct{}
	once sync.Once
}

// NewLoop creates a Loop for d. buffer <= 0 uses DefaultLoopBuffer.
func NewLoop(d *Dispatcher, buffer int) *Loop {
	if buffer <= 0 {
		buffer = DefaultLoopBuffer
	}
	return &Loop{
		d:    d,
		ops:  make(chan func(context.Context), buffer),
		done: make(chan struct{}),
	}
}

// Run executes queued operations until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	slog.Debug(fmt.Sprintf("%s - started", loopLogPrefix))
	for {
		select {
		case <-ctx.Done():
			slog.Debug(fmt.Sprintf("%s - stopped: %v", loopLogPrefix, ctx.Err()))
			return ctx.Err()
		case op := <-l.ops:
			op(ctx)
		}
	}
}

// submit queues op, blocking while the buffer is full. It fails only once
// the loop has stopped.
func (l *Loop) submit(op func(context.Context)) error {
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	select {
	case l.ops <- op:
		return nil
	case <-l.done:
		return ErrLoopStopped
	}
}

// Deliver queues env for routing. It is the Receiver handed to a transport.
func (l *Loop) Deliver(env *protocol.Envelope) {
	if err := l.submit(func(ctx context.Context) { l.d.Route(ctx, env) }); err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping %s: %v", loopLogPrefix, env.Type, err))
	}
}

// Go queues fn without waiting for it.
func (l *Loop) Go(fn func(context.Context, *Dispatcher)) error {
	return l.submit(func(ctx context.Context) { fn(ctx, l.d) })
}

// Do runs fn on the loop and waits for it to finish. Calling Do from inside
// a handler deadlocks; handlers already run on the loop and may use the
// Dispatcher directly.
func (l *Loop) Do(ctx context.Context, fn func(context.Context, *Dispatcher)) error {
	finished := make(chan struct{})
	if err := l.submit(func(loopCtx context.Context) {
		defer close(finished)
		fn(loopCtx, l.d)
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status is a point-in-time view of the dispatcher.
type Status struct {
	Embedded bool `json:"embedded"`
	Ready    bool `json:"ready"`
	Pending  int  `json:"pending"`
}

// Status reads the dispatcher state on the loop.
func (l *Loop) Status(ctx context.Context) (Status, error) {
	var s Status
	err := l.Do(ctx, func(_ context.Context, d *Dispatcher) {
		s = Status{Embedded: d.IsEmbedded(), Ready: d.IsReady(), Pending: d.PendingCount()}
	})
	return s, err
}
