package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/morezero/designer-bridge/pkg/protocol"
)

const wsTestPrefix = "transport:websocket_test"

func TestWebSocket_RoundTrip(t *testing.T) {
	server := NewWebSocketServer()
	defer server.Close()

	serverFn, serverCh := collect(4)
	if err := server.Listen(serverFn); err != nil {
		t.Fatalf("%s - server Listen failed: %v", wsTestPrefix, err)
	}

	ts := httptest.NewServer(server)
	defer ts.Close()

	if err := server.Send(context.Background(), protocol.NewReady()); err != nil {
		t.Fatalf("%s - Send without peer = %v, want it held", wsTestPrefix, err)
	}
	if server.Held() != 1 {
		t.Errorf("%s - Held = %d, want 1", wsTestPrefix, server.Held())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := DialWebSocket(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"))
	if err != nil {
		t.Fatalf("%s - Dial failed: %v", wsTestPrefix, err)
	}
	defer client.Close()

	clientFn, clientCh := collect(4)
	if err := client.Listen(clientFn); err != nil {
		t.Fatalf("%s - client Listen failed: %v", wsTestPrefix, err)
	}
	if env := waitEnvelope(t, clientCh, wsTestPrefix); env.Type != protocol.KindReady {
		t.Errorf("%s - first frame = %s, want the held READY", wsTestPrefix, env.Type)
	}

	if err := client.Send(ctx, protocol.NewGetWorkflow("r1")); err != nil {
		t.Fatalf("%s - client Send failed: %v", wsTestPrefix, err)
	}
	if env := waitEnvelope(t, serverCh, wsTestPrefix); env.RequestID != "r1" {
		t.Errorf("%s - server received requestId %q, want r1", wsTestPrefix, env.RequestID)
	}

	if !server.Connected() {
		t.Fatalf("%s - expected server to report a connected peer", wsTestPrefix)
	}
	if err := server.Send(ctx, protocol.NewWorkflowResponse("r1", protocol.Workflow{"$schema": "s"})); err != nil {
		t.Fatalf("%s - server Send failed: %v", wsTestPrefix, err)
	}
	env := waitEnvelope(t, clientCh, wsTestPrefix)
	p, ok := env.Payload.(*protocol.WorkflowResponsePayload)
	if !ok {
		t.Fatalf("%s - payload type = %T, want *WorkflowResponsePayload", wsTestPrefix, env.Payload)
	}
	if p.Workflow["$schema"] != "s" {
		t.Errorf("%s - workflow = %v, want $schema=s", wsTestPrefix, p.Workflow)
	}
}

func TestWebSocketServer_SendAfterClose(t *testing.T) {
	server := NewWebSocketServer()
	server.Close()
	if err := server.Send(context.Background(), protocol.NewReady()); err != ErrClosed {
		t.Errorf("%s - Send after Close = %v, want ErrClosed", wsTestPrefix, err)
	}
}

func TestWebSocketServer_HoldBufferIsBounded(t *testing.T) {
	server := NewWebSocketServer()
	defer server.Close()

	ctx := context.Background()
	for i := 0; i < sendBuffer; i++ {
		if err := server.Send(ctx, protocol.NewReady()); err != nil {
			t.Fatalf("%s - Send %d failed: %v", wsTestPrefix, i, err)
		}
	}
	if err := server.Send(ctx, protocol.NewReady()); err != ErrNotConnected {
		t.Errorf("%s - Send past the hold buffer = %v, want ErrNotConnected", wsTestPrefix, err)
	}
}
