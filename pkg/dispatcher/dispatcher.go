// Package dispatcher is the editor-side handshake state machine: it owns the
// handler table, queues inbound envelopes until the editor is ready,
// announces readiness and routes envelopes to handlers.
//
// A Dispatcher is not safe for concurrent use. Drive it from a single
// goroutine, normally through a Loop.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/designer-bridge/pkg/events"
	"github.com/morezero/designer-bridge/pkg/protocol"
)

const logPrefix = "dispatcher:dispatch"

// Handler receives the payload of one routed envelope. For GET_WORKFLOW the
// payload is a *protocol.GetWorkflowPayload carrying only the requestId.
type Handler func(ctx context.Context, payload interface{})

// Sender is the outbound half of a transport.
type Sender interface {
	Send(ctx context.Context, env *protocol.Envelope) error
}

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Transport Sender
	// Embedded is the mode flag, fixed for the dispatcher's lifetime.
	Embedded        bool
	SessionID       string
	ProtocolVersion string
	// Publisher receives lifecycle events. Nil means a NoOpPublisher.
	Publisher events.EventPublisher
}

// Dispatcher routes envelopes to handlers once the editor is ready.
type Dispatcher struct {
	transport       Sender
	embedded        bool
	sessionID       string
	protocolVersion string
	publisher       events.EventPublisher

	handlers map[protocol.Kind]Handler
	pending  []*protocol.Envelope
	ready    bool
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(p NewDispatcherParams) *Dispatcher {
	if p.Publisher == nil {
		p.Publisher = &events.NoOpPublisher{}
	}
	return &Dispatcher{
		transport:       p.Transport,
		embedded:        p.Embedded,
		sessionID:       p.SessionID,
		protocolVersion: p.ProtocolVersion,
		publisher:       p.Publisher,
		handlers:        make(map[protocol.Kind]Handler),
	}
}

// IsEmbedded reports the mode flag.
func (d *Dispatcher) IsEmbedded() bool { return d.embedded }

// IsReady reports whether envelopes are routed rather than queued.
func (d *Dispatcher) IsReady() bool { return d.ready }

// PendingCount is the number of envelopes waiting for readiness.
func (d *Dispatcher) PendingCount() int { return len(d.pending) }

// RegisterHandler binds h to kind, replacing any previous handler, then
// checks whether the dispatcher just became ready.
func (d *Dispatcher) RegisterHandler(ctx context.Context, kind protocol.Kind, h Handler) {
	if h == nil {
		slog.Warn(fmt.Sprintf("%s - ignoring nil handler for %s", logPrefix, kind))
		return
	}
	slog.Debug(fmt.Sprintf("%s - registering %s handler", logPrefix, kind))
	d.handlers[kind] = h
	d.checkReady(ctx)
}

// OnLoadWorkflow registers a typed LOAD_WORKFLOW handler.
func (d *Dispatcher) OnLoadWorkflow(ctx context.Context, fn func(context.Context, *protocol.LoadWorkflowPayload)) {
	d.RegisterHandler(ctx, protocol.KindLoadWorkflow, func(ctx context.Context, payload interface{}) {
		p, ok := payload.(*protocol.LoadWorkflowPayload)
		if !ok {
			slog.Warn(fmt.Sprintf("%s - LOAD_WORKFLOW payload has type %T, dropping", logPrefix, payload))
			return
		}
		fn(ctx, p)
	})
}

// OnUpdateConfig registers a typed UPDATE_CONFIG handler. A missing payload
// is passed as an empty update.
func (d *Dispatcher) OnUpdateConfig(ctx context.Context, fn func(context.Context, *protocol.UpdateConfigPayload)) {
	d.RegisterHandler(ctx, protocol.KindUpdateConfig, func(ctx context.Context, payload interface{}) {
		switch p := payload.(type) {
		case *protocol.UpdateConfigPayload:
			fn(ctx, p)
		case nil:
			fn(ctx, &protocol.UpdateConfigPayload{})
		default:
			slog.Warn(fmt.Sprintf("%s - UPDATE_CONFIG payload has type %T, dropping", logPrefix, payload))
		}
	})
}

// OnGetWorkflow registers a typed GET_WORKFLOW handler.
func (d *Dispatcher) OnGetWorkflow(ctx context.Context, fn func(context.Context, *protocol.GetWorkflowPayload)) {
	d.RegisterHandler(ctx, protocol.KindGetWorkflow, func(ctx context.Context, payload interface{}) {
		p, ok := payload.(*protocol.GetWorkflowPayload)
		if !ok {
			slog.Warn(fmt.Sprintf("%s - GET_WORKFLOW payload has type %T, dropping", logPrefix, payload))
			return
		}
		fn(ctx, p)
	})
}

// checkReady performs the one-time false→true transition: announce READY,
// then drain the pending queue in arrival order.
func (d *Dispatcher) checkReady(ctx context.Context) {
	if d.ready || !d.embedded {
		return
	}
	_, hasLoad := d.handlers[protocol.KindLoadWorkflow]
	_, hasConfig := d.handlers[protocol.KindUpdateConfig]
	if !hasLoad || !hasConfig {
		return
	}

	d.ready = true
	queued := d.pending
	d.pending = nil
	slog.Info(fmt.Sprintf("%s - handlers registered, announcing READY and flushing %d queued envelopes", logPrefix, len(queued)))

	d.Send(ctx, protocol.NewReady())
	d.publish(ctx, events.EventReady, len(queued), "")

	for _, env := range queued {
		d.Route(ctx, env)
	}
	d.publish(ctx, events.EventFlushed, len(queued), "")
}

// Route queues env until the dispatcher is ready, then hands it to the
// handler for its kind. Kinds without a handler are discarded.
func (d *Dispatcher) Route(ctx context.Context, env *protocol.Envelope) {
	if env == nil {
		return
	}
	if !d.ready {
		d.pending = append(d.pending, env)
		slog.Debug(fmt.Sprintf("%s - not ready, queued %s (%d pending)", logPrefix, env.Type, len(d.pending)))
		return
	}

	h, ok := d.handlers[env.Type]
	if !ok {
		if suggestion, found := protocol.ClosestKind(string(env.Type)); found && suggestion != env.Type {
			slog.Debug(fmt.Sprintf("%s - no handler for %s (did you mean %s?), discarding", logPrefix, env.Type, suggestion))
		} else {
			slog.Debug(fmt.Sprintf("%s - no handler for %s, discarding", logPrefix, env.Type))
		}
		d.publish(ctx, events.EventDropped, 0, string(env.Type))
		return
	}

	payload := env.Payload
	if env.Type == protocol.KindGetWorkflow {
		payload = &protocol.GetWorkflowPayload{RequestID: env.RequestID}
	}
	d.invoke(ctx, env.Type, h, payload)
}

func (d *Dispatcher) invoke(ctx context.Context, kind protocol.Kind, h Handler, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - %s handler panicked: %v", logPrefix, kind, r))
		}
	}()
	h(ctx, payload)
}

// Send hands env to the transport. Outside embedded mode it does nothing.
// Delivery is fire-and-forget: transport errors are logged, not returned.
func (d *Dispatcher) Send(ctx context.Context, env *protocol.Envelope) {
	if !d.embedded {
		slog.Debug(fmt.Sprintf("%s - not embedded, suppressing %s", logPrefix, env.Type))
		return
	}
	if d.transport == nil {
		slog.Warn(fmt.Sprintf("%s - no transport, dropping %s", logPrefix, env.Type))
		return
	}
	if err := d.transport.Send(ctx, env); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to send %s: %v", logPrefix, env.Type, err))
	}
}

// Respond answers a GET_WORKFLOW request.
func (d *Dispatcher) Respond(ctx context.Context, requestID string, w protocol.Workflow) {
	d.Send(ctx, protocol.NewWorkflowResponse(requestID, w))
}

// NotifyWorkflowChanged tells the host a workflow was committed.
func (d *Dispatcher) NotifyWorkflowChanged(ctx context.Context, w protocol.Workflow, isValid bool) {
	d.Send(ctx, protocol.NewWorkflowChanged(w, isValid))
}

// NotifyError reports an editor-side failure to the host.
func (d *Dispatcher) NotifyError(ctx context.Context, message, code string) {
	d.Send(ctx, protocol.NewError(message, code))
}

func (d *Dispatcher) publish(ctx context.Context, t events.SessionEventType, pending int, kind string) {
	event := &events.SessionEvent{
		SessionID:       d.sessionID,
		Type:            t,
		Embedded:        d.embedded,
		ProtocolVersion: d.protocolVersion,
		Pending:         pending,
		Kind:            kind,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	if err := d.publisher.PublishSession(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event: %v", logPrefix, t, err))
	}
}

// Close publishes the closed lifecycle event and discards anything still queued.
func (d *Dispatcher) Close(ctx context.Context) {
	d.publish(ctx, events.EventClosed, len(d.pending), "")
	d.pending = nil
}
