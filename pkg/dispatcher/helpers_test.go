package dispatcher

import (
	"context"
	"errors"

	"github.com/morezero/designer-bridge/pkg/protocol"
)

// recordingSender captures every envelope handed to the transport.
type recordingSender struct {
	sent []*protocol.Envelope
	err  error
	// onSend runs inside Send, after recording.
	onSend func(env *protocol.Envelope)
}

func (s *recordingSender) Send(_ context.Context, env *protocol.Envelope) error {
	s.sent = append(s.sent, env)
	if s.onSend != nil {
		s.onSend(env)
	}
	return s.err
}

func (s *recordingSender) kinds() []protocol.Kind {
	out := make([]protocol.Kind, 0, len(s.sent))
	for _, env := range s.sent {
		out = append(out, env.Type)
	}
	return out
}

var errTransportDown = errors.New("transport down")

// routed is one handler invocation seen by a test.
type routed struct {
	kind    protocol.Kind
	payload interface{}
}

// recorder returns a handler that appends its invocations to *log.
func recorder(kind protocol.Kind, log *[]routed) Handler {
	return func(_ context.Context, payload interface{}) {
		*log = append(*log, routed{kind: kind, payload: payload})
	}
}

func newEmbedded(sender *recordingSender) *Dispatcher {
	return NewDispatcher(NewDispatcherParams{Transport: sender, Embedded: true, SessionID: "s1", ProtocolVersion: "1.0.0"})
}

func getEnvelope(id string) *protocol.Envelope {
	return &protocol.Envelope{Type: protocol.KindGetWorkflow, RequestID: id, Payload: &protocol.GetWorkflowPayload{RequestID: id}}
}
