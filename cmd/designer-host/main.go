// Package main is a host simulator: it finds an editor session, pushes a
// launch document into it once READY arrives and prints the editor's workflow.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/morezero/designer-bridge/internal/config"
	"github.com/morezero/designer-bridge/internal/server"
	"github.com/morezero/designer-bridge/pkg/bootstrap"
	"github.com/morezero/designer-bridge/pkg/commsutil"
	"github.com/morezero/designer-bridge/pkg/host"
	"github.com/morezero/designer-bridge/pkg/protocol"
	"github.com/morezero/designer-bridge/pkg/transport"
)

const logPrefix = "cmd:designer-host"

const usage = `Usage: designer-host [launch-file]

Waits for an editor session, sends the launch document's LOAD_WORKFLOW (and
UPDATE_CONFIG when present) and prints the workflow the editor reports back.

With TRANSPORT=nats the session is SESSION_ID when set; otherwise the first
editor announcing READY with a protocol version matching
HOST_PROTOCOL_CONSTRAINT (or the document's protocol field) is used. With
TRANSPORT=websocket the host dials HOST_EDITOR_URL.

Environment: TRANSPORT, COMMS_URL, SESSION_ID, HOST_EDITOR_URL, HOST_LAUNCH_FILE,
HOST_PROTOCOL_CONSTRAINT, HOST_READY_TIMEOUT (default 30s), LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	launchFile := ""
	if len(args) > 0 {
		switch args[0] {
		case "help", "-h", "--help":
			fmt.Print(usage)
			return
		default:
			launchFile = args[0]
		}
	}

	if err := run(launchFile); err != nil {
		log.Fatalf("designer-host: %v", err)
	}
}

func run(launchFile string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForHost(); err != nil {
		return err
	}

	doc, err := bootstrap.LoadLaunchDocument(launchFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HostReadyTimeout)
	defer cancel()

	tr, discovered, cleanup, err := openTransport(ctx, cfg, doc)
	if err != nil {
		return err
	}
	defer cleanup()

	client := host.NewClient(tr)
	defer client.Close()
	client.OnWorkflowChanged(func(p *protocol.WorkflowChangedPayload) {
		slog.Info(fmt.Sprintf("%s - workflow changed (valid=%t)", logPrefix, p.IsValid))
	})
	client.OnError(func(p *protocol.ErrorPayload) {
		slog.Warn(fmt.Sprintf("%s - editor error %s: %s", logPrefix, p.Code, p.Message))
	})
	if err := client.Start(); err != nil {
		return err
	}
	if discovered {
		// The announcement we matched was the editor's READY.
		client.MarkReady()
	}

	// Sent before READY; the editor queues them until its handlers exist.
	if err := client.Launch(ctx, doc.Envelopes()); err != nil {
		return err
	}

	if err := client.WaitReady(ctx); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - editor is ready", logPrefix))

	workflow, err := client.GetWorkflow(ctx)
	if err != nil {
		return err
	}
	return printWorkflow(os.Stdout, workflow)
}

// openTransport connects to the editor. Over NATS the session is SESSION_ID
// or the first compatible one announcing READY; over websocket it is
// whichever editor serves HOST_EDITOR_URL. discovered reports that the
// session was found through its READY announcement.
func openTransport(ctx context.Context, cfg *config.Config, doc *bootstrap.LaunchDocument) (tr transport.Transport, discovered bool, cleanup func(), err error) {
	if cfg.Transport == config.TransportWebSocket {
		ws, err := transport.DialWebSocket(ctx, cfg.HostEditorURL)
		if err != nil {
			return nil, false, nil, err
		}
		return ws, false, func() {}, nil
	}

	nc, err := commsutil.Connect(cfg.COMMSURL, "designer-host")
	if err != nil {
		return nil, false, nil, fmt.Errorf("connect COMMS: %w", err)
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		event, err := host.DiscoverSession(ctx, nc, constraintFor(cfg, doc))
		if err != nil {
			nc.Close()
			return nil, false, nil, err
		}
		sessionID = event.SessionID
		discovered = true
	}
	slog.Info(fmt.Sprintf("%s - using session %s", logPrefix, sessionID))
	return transport.NewHostCommsTransport(nc, sessionID), discovered, func() { nc.Drain() }, nil
}

// constraintFor prefers HOST_PROTOCOL_CONSTRAINT over the document's protocol field.
func constraintFor(cfg *config.Config, doc *bootstrap.LaunchDocument) string {
	if cfg.HostProtocolConstraint != "" {
		return cfg.HostProtocolConstraint
	}
	return doc.Protocol
}

func printWorkflow(w io.Writer, workflow protocol.Workflow) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(workflow)
}
