package host

import (
	"context"
	"testing"
	"time"

	"github.com/morezero/designer-bridge/internal/testutil"
	"github.com/morezero/designer-bridge/pkg/designer"
	"github.com/morezero/designer-bridge/pkg/dispatcher"
	"github.com/morezero/designer-bridge/pkg/events"
	"github.com/morezero/designer-bridge/pkg/protocol"
	"github.com/morezero/designer-bridge/pkg/transport"
)

const discoveryTestPrefix = "host:discovery_test"

func TestDiscoverSession_SkipsIncompatibleVersions(t *testing.T) {
	nc, _ := testutil.StartCommsServer(t)
	publisher := events.NewCommsPublisher(nc, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := make(chan *events.SessionEvent, 1)
	errCh := make(chan error, 1)
	go func() {
		event, err := DiscoverSession(ctx, nc, "^1.0.0")
		if err != nil {
			errCh <- err
			return
		}
		result <- event
	}()

	// Keep announcing until the subscriber is attached.
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		publisher.PublishSession(ctx, &events.SessionEvent{SessionID: "old", Type: events.EventReady, ProtocolVersion: "2.1.0"})
		publisher.PublishSession(ctx, &events.SessionEvent{SessionID: "good", Type: events.EventReady, ProtocolVersion: "1.4.0"})
		select {
		case event := <-result:
			if event.SessionID != "good" {
				t.Errorf("%s - discovered %q, want good", discoveryTestPrefix, event.SessionID)
			}
			return
		case err := <-errCh:
			t.Fatalf("%s - DiscoverSession failed: %v", discoveryTestPrefix, err)
		case <-ticker.C:
		}
	}
}

func TestDiscoverSession_Timeout(t *testing.T) {
	nc, _ := testutil.StartCommsServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := DiscoverSession(ctx, nc, ""); err == nil {
		t.Errorf("%s - expected timeout error", discoveryTestPrefix)
	}
}

func TestEndToEnd_OverComms(t *testing.T) {
	nc, _ := testutil.StartCommsServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	editorT := transport.NewEditorCommsTransport(nc, "e2e")
	d := dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Transport:       editorT,
		Embedded:        true,
		SessionID:       "e2e",
		ProtocolVersion: "1.0.0",
		Publisher:       events.NewCommsPublisher(nc, nil),
	})
	loop := dispatcher.NewLoop(d, 0)
	loopCtx, stop := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		loop.Run(loopCtx)
	}()
	defer func() {
		stop()
		<-stopped
	}()
	if err := editorT.Listen(loop.Deliver); err != nil {
		t.Fatalf("%s - editor Listen failed: %v", discoveryTestPrefix, err)
	}

	client := NewClient(transport.NewHostCommsTransport(nc, "e2e"))
	defer client.Close()
	if err := client.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", discoveryTestPrefix, err)
	}

	if err := client.LoadWorkflow(ctx, &protocol.LoadWorkflowPayload{Workflow: validWorkflow("over-comms")}); err != nil {
		t.Fatalf("%s - LoadWorkflow failed: %v", discoveryTestPrefix, err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("%s - Flush failed: %v", discoveryTestPrefix, err)
	}

	store := designer.NewStore()
	if err := loop.Do(ctx, func(ctx context.Context, d *dispatcher.Dispatcher) {
		designer.NewIntegration(d, store, designer.Options{}).Register(ctx)
	}); err != nil {
		t.Fatalf("%s - registration failed: %v", discoveryTestPrefix, err)
	}

	if err := client.WaitReady(ctx); err != nil {
		t.Fatalf("%s - WaitReady failed: %v", discoveryTestPrefix, err)
	}
	w, err := client.GetWorkflow(ctx)
	if err != nil {
		t.Fatalf("%s - GetWorkflow failed: %v", discoveryTestPrefix, err)
	}
	if w["name"] != "over-comms" {
		t.Errorf("%s - workflow name = %v, want over-comms", discoveryTestPrefix, w["name"])
	}
}

// An editor that became ready before the host attached never repeats READY
// on the envelope subject; the discovered announcement has to stand in.
func TestDiscoveredSession_ReadyBeforeClientAttaches(t *testing.T) {
	nc, _ := testutil.StartCommsServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	discovered := make(chan *events.SessionEvent, 1)
	errCh := make(chan error, 1)
	go func() {
		event, err := DiscoverSession(ctx, nc, "^1.0.0")
		if err != nil {
			errCh <- err
			return
		}
		discovered <- event
	}()

	// The editor shares nc, so its announcement is ordered after the
	// discovery subscription once that subscription exists.
	for nc.NumSubscriptions() == 0 {
		select {
		case err := <-errCh:
			t.Fatalf("%s - DiscoverSession failed: %v", discoveryTestPrefix, err)
		case <-ctx.Done():
			t.Fatalf("%s - discovery never subscribed", discoveryTestPrefix)
		case <-time.After(5 * time.Millisecond):
		}
	}

	editorT := transport.NewEditorCommsTransport(nc, "s-disc")
	d := dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Transport:       editorT,
		Embedded:        true,
		SessionID:       "s-disc",
		ProtocolVersion: "1.0.0",
		Publisher:       events.NewCommsPublisher(nc, nil),
	})
	loop := dispatcher.NewLoop(d, 0)
	loopCtx, stop := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		loop.Run(loopCtx)
	}()
	defer func() {
		stop()
		<-stopped
	}()
	if err := editorT.Listen(loop.Deliver); err != nil {
		t.Fatalf("%s - editor Listen failed: %v", discoveryTestPrefix, err)
	}
	if err := loop.Do(ctx, func(ctx context.Context, d *dispatcher.Dispatcher) {
		designer.NewIntegration(d, designer.NewStore(), designer.Options{}).Register(ctx)
	}); err != nil {
		t.Fatalf("%s - registration failed: %v", discoveryTestPrefix, err)
	}

	var event *events.SessionEvent
	select {
	case event = <-discovered:
	case err := <-errCh:
		t.Fatalf("%s - DiscoverSession failed: %v", discoveryTestPrefix, err)
	}
	if event.SessionID != "s-disc" {
		t.Fatalf("%s - discovered %q, want s-disc", discoveryTestPrefix, event.SessionID)
	}

	client := NewClient(transport.NewHostCommsTransport(nc, event.SessionID))
	defer client.Close()
	if err := client.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", discoveryTestPrefix, err)
	}

	// READY went out before the client subscribed.
	short, cancelShort := context.WithTimeout(ctx, 100*time.Millisecond)
	err := client.WaitReady(short)
	cancelShort()
	if err == nil {
		t.Fatalf("%s - client saw READY it could not have received", discoveryTestPrefix)
	}

	client.MarkReady()
	client.MarkReady()
	if err := client.WaitReady(ctx); err != nil {
		t.Fatalf("%s - WaitReady after MarkReady failed: %v", discoveryTestPrefix, err)
	}

	if err := client.LoadWorkflow(ctx, &protocol.LoadWorkflowPayload{Workflow: validWorkflow("discovered")}); err != nil {
		t.Fatalf("%s - LoadWorkflow failed: %v", discoveryTestPrefix, err)
	}
	w, err := client.GetWorkflow(ctx)
	if err != nil {
		t.Fatalf("%s - GetWorkflow failed: %v", discoveryTestPrefix, err)
	}
	if w["name"] != "discovered" {
		t.Errorf("%s - workflow name = %v, want discovered", discoveryTestPrefix, w["name"])
	}
}
