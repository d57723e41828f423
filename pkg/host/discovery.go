package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/designer-bridge/pkg/commsutil"
	"github.com/morezero/designer-bridge/pkg/events"
	"github.com/morezero/designer-bridge/pkg/semver"
)

const discoveryLogPrefix = "host:discovery"

// DiscoverSession waits for the next editor announcing readiness whose
// protocol version satisfies constraint. Announcements with an incompatible
// or unparsable version are skipped.
func DiscoverSession(ctx context.Context, nc *comms.Conn, constraint string) (*events.SessionEvent, error) {
	subject := commsutil.BuildSessionEventSubject(string(events.EventReady))
	found := make(chan *events.SessionEvent, 1)

	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var event events.SessionEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn(fmt.Sprintf("%s - bad session event on %s: %v", discoveryLogPrefix, msg.Subject, err))
			return
		}
		ok, err := semver.Compatible(event.ProtocolVersion, constraint)
		if err != nil || !ok {
			slog.Info(fmt.Sprintf("%s - skipping session %s with protocol %q (constraint %q)", discoveryLogPrefix, event.SessionID, event.ProtocolVersion, constraint))
			return
		}
		select {
		case found <- &event:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", discoveryLogPrefix, subject, err)
	}
	defer sub.Unsubscribe()

	if err := nc.Flush(); err != nil {
		return nil, fmt.Errorf("%s - failed to flush subscription: %w", discoveryLogPrefix, err)
	}

	select {
	case event := <-found:
		slog.Info(fmt.Sprintf("%s - discovered session %s (protocol %s)", discoveryLogPrefix, event.SessionID, event.ProtocolVersion))
		return event, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s - no compatible session: %w", discoveryLogPrefix, ctx.Err())
	}
}
