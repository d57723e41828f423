package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/morezero/designer-bridge/pkg/designer"
	"github.com/morezero/designer-bridge/pkg/dispatcher"
	"github.com/morezero/designer-bridge/pkg/protocol"
	"github.com/morezero/designer-bridge/pkg/transport"
)

const clientTestPrefix = "host:client_test"

func validWorkflow(name string) protocol.Workflow {
	return protocol.Workflow{
		"$schema":  "https://example.com/workflow.schema.json",
		"name":     name,
		"triggers": map[string]interface{}{"t": map[string]interface{}{"type": "manual"}},
		"actions":  map[string]interface{}{"a": map[string]interface{}{"type": "noop"}},
	}
}

// startEditor runs a dispatcher loop on the editor end of a pipe and
// returns it unregistered.
func startEditor(t *testing.T, end *transport.Pipe) *dispatcher.Loop {
	t.Helper()
	d := dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{Transport: end, Embedded: true, SessionID: "s1"})
	loop := dispatcher.NewLoop(d, 0)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	if err := end.Listen(loop.Deliver); err != nil {
		t.Fatalf("%s - editor Listen failed: %v", clientTestPrefix, err)
	}
	return loop
}

func register(t *testing.T, loop *dispatcher.Loop, store *designer.Store) {
	t.Helper()
	err := loop.Do(context.Background(), func(ctx context.Context, d *dispatcher.Dispatcher) {
		designer.NewIntegration(d, store, designer.Options{}).Register(ctx)
	})
	if err != nil {
		t.Fatalf("%s - registration failed: %v", clientTestPrefix, err)
	}
}

func TestClient_LoadBeforeReadyThenGet(t *testing.T) {
	hostEnd, editorEnd := transport.NewPipe()
	defer editorEnd.Close()

	client := NewClient(hostEnd)
	defer client.Close()

	changed := make(chan *protocol.WorkflowChangedPayload, 1)
	client.OnWorkflowChanged(func(p *protocol.WorkflowChangedPayload) { changed <- p })
	if err := client.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", clientTestPrefix, err)
	}

	loop := startEditor(t, editorEnd)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.LoadWorkflow(ctx, &protocol.LoadWorkflowPayload{Workflow: validWorkflow("W"), Locale: "fr"}); err != nil {
		t.Fatalf("%s - LoadWorkflow failed: %v", clientTestPrefix, err)
	}

	select {
	case <-client.Ready():
		t.Fatalf("%s - READY before the editor registered its handlers", clientTestPrefix)
	default:
	}

	store := designer.NewStore()
	register(t, loop, store)

	if err := client.WaitReady(ctx); err != nil {
		t.Fatalf("%s - WaitReady failed: %v", clientTestPrefix, err)
	}

	select {
	case p := <-changed:
		if p.Workflow["name"] != "W" || !p.IsValid {
			t.Errorf("%s - WORKFLOW_CHANGED = %+v", clientTestPrefix, p)
		}
	case <-ctx.Done():
		t.Fatalf("%s - timeout waiting for WORKFLOW_CHANGED", clientTestPrefix)
	}

	w, err := client.GetWorkflow(ctx)
	if err != nil {
		t.Fatalf("%s - GetWorkflow failed: %v", clientTestPrefix, err)
	}
	if w["name"] != "W" {
		t.Errorf("%s - GetWorkflow name = %v, want W", clientTestPrefix, w["name"])
	}
	if got := store.Snapshot().Language; got != "fr" {
		t.Errorf("%s - editor language = %q, want fr", clientTestPrefix, got)
	}
}

func TestClient_GetWorkflowWithoutWorkflow(t *testing.T) {
	hostEnd, editorEnd := transport.NewPipe()
	defer editorEnd.Close()

	client := NewClient(hostEnd)
	defer client.Close()
	if err := client.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", clientTestPrefix, err)
	}

	loop := startEditor(t, editorEnd)
	register(t, loop, designer.NewStore())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w, err := client.GetWorkflow(ctx)
	if err != nil {
		t.Fatalf("%s - GetWorkflow failed: %v", clientTestPrefix, err)
	}
	if w != nil {
		t.Errorf("%s - expected nil workflow, got %v", clientTestPrefix, w)
	}
}

func TestClient_ConcurrentGetsAreCorrelated(t *testing.T) {
	hostEnd, editorEnd := transport.NewPipe()
	defer editorEnd.Close()

	client := NewClient(hostEnd)
	defer client.Close()
	if err := client.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", clientTestPrefix, err)
	}

	loop := startEditor(t, editorEnd)
	store := designer.NewStore()
	register(t, loop, store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.LoadWorkflow(ctx, &protocol.LoadWorkflowPayload{Workflow: validWorkflow("W")}); err != nil {
		t.Fatalf("%s - LoadWorkflow failed: %v", clientTestPrefix, err)
	}
	// The load is ordered before every GET on the same channel.
	const n = 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			w, err := client.GetWorkflow(ctx)
			if err == nil && w["name"] != "W" {
				err = errors.New("unexpected workflow")
			}
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Errorf("%s - GetWorkflow: %v", clientTestPrefix, err)
		}
	}
}

func TestClient_GetWorkflowHonorsContext(t *testing.T) {
	hostEnd, editorEnd := transport.NewPipe()
	defer editorEnd.Close()

	client := NewClient(hostEnd)
	defer client.Close()
	if err := client.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", clientTestPrefix, err)
	}

	// Nobody answers on the editor end.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetWorkflow(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("%s - err = %v, want DeadlineExceeded", clientTestPrefix, err)
	}
}

func TestClient_ErrorCallbackAndStrayResponse(t *testing.T) {
	hostEnd, editorEnd := transport.NewPipe()
	defer editorEnd.Close()

	client := NewClient(hostEnd)
	defer client.Close()

	reported := make(chan *protocol.ErrorPayload, 1)
	client.OnError(func(p *protocol.ErrorPayload) { reported <- p })
	if err := client.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", clientTestPrefix, err)
	}

	ctx := context.Background()
	if err := editorEnd.Send(ctx, protocol.NewWorkflowResponse("nobody-asked", validWorkflow("X"))); err != nil {
		t.Fatalf("%s - Send failed: %v", clientTestPrefix, err)
	}
	if err := editorEnd.Send(ctx, protocol.NewError("bad workflow", protocol.CodeInvalidWorkflow)); err != nil {
		t.Fatalf("%s - Send failed: %v", clientTestPrefix, err)
	}

	select {
	case p := <-reported:
		if p.Message != "bad workflow" || p.Code != protocol.CodeInvalidWorkflow {
			t.Errorf("%s - error payload = %+v", clientTestPrefix, p)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for ERROR callback", clientTestPrefix)
	}
}

func TestClient_LoadWorkflowRequiresWorkflow(t *testing.T) {
	hostEnd, editorEnd := transport.NewPipe()
	defer editorEnd.Close()
	client := NewClient(hostEnd)
	defer client.Close()

	if err := client.LoadWorkflow(context.Background(), &protocol.LoadWorkflowPayload{}); err == nil {
		t.Errorf("%s - expected error for a load without workflow", clientTestPrefix)
	}
}

func TestClient_WaitReadyAfterClose(t *testing.T) {
	hostEnd, editorEnd := transport.NewPipe()
	defer editorEnd.Close()
	client := NewClient(hostEnd)
	client.Close()

	if err := client.WaitReady(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Errorf("%s - err = %v, want ErrClientClosed", clientTestPrefix, err)
	}
}

func TestClient_LaunchSendsInOrder(t *testing.T) {
	hostEnd, editorEnd := transport.NewPipe()
	defer editorEnd.Close()
	client := NewClient(hostEnd)
	defer client.Close()
	if err := client.Start(); err != nil {
		t.Fatalf("%s - Start failed: %v", clientTestPrefix, err)
	}

	loop := startEditor(t, editorEnd)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	envs := []*protocol.Envelope{
		protocol.NewLoadWorkflow(&protocol.LoadWorkflowPayload{Workflow: validWorkflow("L")}),
		protocol.NewUpdateConfig(&protocol.UpdateConfigPayload{Theme: protocol.ThemeDark}),
	}
	if err := client.Launch(ctx, envs); err != nil {
		t.Fatalf("%s - Launch failed: %v", clientTestPrefix, err)
	}

	store := designer.NewStore()
	register(t, loop, store)
	if err := client.WaitReady(ctx); err != nil {
		t.Fatalf("%s - WaitReady failed: %v", clientTestPrefix, err)
	}

	w, err := client.GetWorkflow(ctx)
	if err != nil {
		t.Fatalf("%s - GetWorkflow failed: %v", clientTestPrefix, err)
	}
	if w["name"] != "L" {
		t.Errorf("%s - workflow name = %v, want L", clientTestPrefix, w["name"])
	}
	if !store.Snapshot().DarkMode {
		t.Errorf("%s - UPDATE_CONFIG after LOAD should leave dark mode on", clientTestPrefix)
	}
}

func TestClient_LaunchRejectsEditorKinds(t *testing.T) {
	hostEnd, editorEnd := transport.NewPipe()
	defer editorEnd.Close()
	client := NewClient(hostEnd)
	defer client.Close()

	bad := [][]*protocol.Envelope{
		{protocol.NewReady()},
		{protocol.NewGetWorkflow("r1")},
		{nil},
	}
	for _, envs := range bad {
		if err := client.Launch(context.Background(), envs); err == nil {
			t.Errorf("%s - expected Launch to reject %v", clientTestPrefix, envs)
		}
	}
}
