package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/designer-bridge/pkg/commsutil"
	"github.com/morezero/designer-bridge/pkg/protocol"
)

const commsLogPrefix = "transport:comms"

// CommsTransport exchanges envelopes over a pair of COMMS subjects. A NATS
// subscription delivers messages serially, which preserves arrival order.
type CommsTransport struct {
	nc          *comms.Conn
	sendSubject string
	recvSubject string

	mu     sync.Mutex
	sub    *comms.Subscription
	closed bool
}

// NewEditorCommsTransport returns the editor side of a session: it receives
// on the to_editor subject and sends on the to_host subject.
func NewEditorCommsTransport(nc *comms.Conn, sessionID string) *CommsTransport {
	return &CommsTransport{
		nc:          nc,
		sendSubject: commsutil.BuildToHostSubject(sessionID),
		recvSubject: commsutil.BuildToEditorSubject(sessionID),
	}
}

// NewHostCommsTransport returns the host side of a session.
func NewHostCommsTransport(nc *comms.Conn, sessionID string) *CommsTransport {
	return &CommsTransport{
		nc:          nc,
		sendSubject: commsutil.BuildToEditorSubject(sessionID),
		recvSubject: commsutil.BuildToHostSubject(sessionID),
	}
}

// Send publishes env on the outbound subject.
func (t *CommsTransport) Send(_ context.Context, env *protocol.Envelope) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := commsutil.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("%s - failed to encode %s: %w", commsLogPrefix, env.Type, err)
	}
	if err := t.nc.Publish(t.sendSubject, data); err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", commsLogPrefix, t.sendSubject, err)
	}
	slog.Debug(fmt.Sprintf("%s - sent %s on %s", commsLogPrefix, env.Type, t.sendSubject))
	return nil
}

// Listen subscribes to the inbound subject.
func (t *CommsTransport) Listen(fn Receiver) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.sub != nil {
		return errors.New("transport: already listening")
	}

	sub, err := t.nc.Subscribe(t.recvSubject, func(msg *comms.Msg) {
		deliverFrame(commsLogPrefix, msg.Data, fn)
	})
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", commsLogPrefix, t.recvSubject, err)
	}
	// The subscription must be registered with the server before Listen
	// returns, otherwise envelopes published right after are lost.
	if err := t.nc.Flush(); err != nil {
		sub.Unsubscribe()
		return fmt.Errorf("%s - failed to flush subscription: %w", commsLogPrefix, err)
	}
	t.sub = sub
	slog.Info(fmt.Sprintf("%s - Listening on %s", commsLogPrefix, t.recvSubject))
	return nil
}

// Close unsubscribes. The connection itself belongs to the caller.
func (t *CommsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.sub != nil {
		return t.sub.Unsubscribe()
	}
	return nil
}
