// Package transport carries protocol envelopes between a host and an editor.
// Transports own no protocol logic: they encode, deliver and decode, and drop
// frames that fail to decode.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/designer-bridge/pkg/commsutil"
	"github.com/morezero/designer-bridge/pkg/protocol"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// ErrNotConnected is returned by Send when no peer is attached.
var ErrNotConnected = errors.New("transport: no peer connected")

// Receiver is called once per inbound envelope, in arrival order.
type Receiver func(env *protocol.Envelope)

// Transport is a bidirectional envelope channel.
type Transport interface {
	// Send delivers env to the peer without waiting for acknowledgment.
	Send(ctx context.Context, env *protocol.Envelope) error
	// Listen starts delivering inbound envelopes to fn. It must be called at most once.
	Listen(fn Receiver) error
	// Close stops delivery and releases resources.
	Close() error
}

// deliverFrame decodes one inbound frame and hands it to fn. Frames that do
// not decode are logged and dropped.
func deliverFrame(logPrefix string, data []byte, fn Receiver) {
	env, err := commsutil.DecodeEnvelope(data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping undecodable frame: %v", logPrefix, err))
		return
	}
	fn(env)
}
