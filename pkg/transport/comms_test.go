package transport

import (
	"context"
	"testing"

	"github.com/morezero/designer-bridge/internal/testutil"
	"github.com/morezero/designer-bridge/pkg/protocol"
)

const commsTestPrefix = "transport:comms_test"

func TestCommsTransport_RoundTrip(t *testing.T) {
	nc, _ := testutil.StartCommsServer(t)

	editor := NewEditorCommsTransport(nc, "session-1")
	host := NewHostCommsTransport(nc, "session-1")
	defer editor.Close()
	defer host.Close()

	editorFn, editorCh := collect(4)
	hostFn, hostCh := collect(4)
	if err := editor.Listen(editorFn); err != nil {
		t.Fatalf("%s - editor Listen failed: %v", commsTestPrefix, err)
	}
	if err := host.Listen(hostFn); err != nil {
		t.Fatalf("%s - host Listen failed: %v", commsTestPrefix, err)
	}

	ctx := context.Background()
	readOnly := true
	if err := host.Send(ctx, protocol.NewUpdateConfig(&protocol.UpdateConfigPayload{ReadOnly: &readOnly})); err != nil {
		t.Fatalf("%s - host Send failed: %v", commsTestPrefix, err)
	}
	got := waitEnvelope(t, editorCh, commsTestPrefix)
	p, ok := got.Payload.(*protocol.UpdateConfigPayload)
	if !ok || p.ReadOnly == nil || !*p.ReadOnly {
		t.Fatalf("%s - editor received %+v, want UPDATE_CONFIG readOnly=true", commsTestPrefix, got)
	}

	if err := editor.Send(ctx, protocol.NewReady()); err != nil {
		t.Fatalf("%s - editor Send failed: %v", commsTestPrefix, err)
	}
	if env := waitEnvelope(t, hostCh, commsTestPrefix); env.Type != protocol.KindReady {
		t.Errorf("%s - host received %s, want READY", commsTestPrefix, env.Type)
	}
}

func TestCommsTransport_SessionsAreIsolated(t *testing.T) {
	nc, _ := testutil.StartCommsServer(t)

	editorA := NewEditorCommsTransport(nc, "a")
	editorB := NewEditorCommsTransport(nc, "b")
	hostB := NewHostCommsTransport(nc, "b")
	defer editorA.Close()
	defer editorB.Close()

	fnA, chA := collect(4)
	fnB, chB := collect(4)
	if err := editorA.Listen(fnA); err != nil {
		t.Fatalf("%s - Listen a failed: %v", commsTestPrefix, err)
	}
	if err := editorB.Listen(fnB); err != nil {
		t.Fatalf("%s - Listen b failed: %v", commsTestPrefix, err)
	}

	if err := hostB.Send(context.Background(), protocol.NewGetWorkflow("rb")); err != nil {
		t.Fatalf("%s - Send failed: %v", commsTestPrefix, err)
	}
	if env := waitEnvelope(t, chB, commsTestPrefix); env.RequestID != "rb" {
		t.Errorf("%s - session b received %q, want rb", commsTestPrefix, env.RequestID)
	}
	nc.Flush()
	select {
	case env := <-chA:
		t.Errorf("%s - session a should receive nothing, got %s", commsTestPrefix, env.Type)
	default:
	}
}

func TestCommsTransport_SendAfterClose(t *testing.T) {
	nc, _ := testutil.StartCommsServer(t)

	editor := NewEditorCommsTransport(nc, "s")
	editor.Close()
	if err := editor.Send(context.Background(), protocol.NewReady()); err != ErrClosed {
		t.Errorf("%s - Send after Close = %v, want ErrClosed", commsTestPrefix, err)
	}
	if err := editor.Listen(func(*protocol.Envelope) {}); err != ErrClosed {
		t.Errorf("%s - Listen after Close = %v, want ErrClosed", commsTestPrefix, err)
	}
}
