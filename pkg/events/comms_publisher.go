package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/designer-bridge/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// Subject overrides the per-type subject (designer.sessions.<type>) for every event.
	Subject string
}

// CommsPublisher publishes session events to COMMS subjects so hosts can
// discover editors without holding a direct channel to them.
type CommsPublisher struct {
	nc      *comms.Conn
	subject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{nc: nc}
	if opts != nil {
		p.subject = opts.Subject
	}
	return p
}

// PublishSession publishes a SessionEvent on its type subject.
func (p *CommsPublisher) PublishSession(_ context.Context, event *SessionEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	subject := p.subject
	if subject == "" {
		subject = commsutil.BuildSessionEventSubject(string(event.Type))
	}
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published %s event for session %s", commsPublisherLogPrefix, event.Type, event.SessionID))
	return nil
}
