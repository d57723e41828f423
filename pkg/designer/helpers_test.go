package designer

import (
	"context"

	"github.com/morezero/designer-bridge/pkg/protocol"
)

type response struct {
	requestID string
	workflow  protocol.Workflow
}

type changed struct {
	workflow protocol.Workflow
	isValid  bool
}

type reported struct {
	message string
	code    string
}

// fakeBridge records registrations and outbound notifications.
type fakeBridge struct {
	load   func(context.Context, *protocol.LoadWorkflowPayload)
	config func(context.Context, *protocol.UpdateConfigPayload)
	get    func(context.Context, *protocol.GetWorkflowPayload)

	responses []response
	changes   []changed
	errors    []reported
}

func (b *fakeBridge) OnLoadWorkflow(_ context.Context, fn func(context.Context, *protocol.LoadWorkflowPayload)) {
	b.load = fn
}

func (b *fakeBridge) OnUpdateConfig(_ context.Context, fn func(context.Context, *protocol.UpdateConfigPayload)) {
	b.config = fn
}

func (b *fakeBridge) OnGetWorkflow(_ context.Context, fn func(context.Context, *protocol.GetWorkflowPayload)) {
	b.get = fn
}

func (b *fakeBridge) Respond(_ context.Context, requestID string, w protocol.Workflow) {
	b.responses = append(b.responses, response{requestID: requestID, workflow: w})
}

func (b *fakeBridge) NotifyWorkflowChanged(_ context.Context, w protocol.Workflow, isValid bool) {
	b.changes = append(b.changes, changed{workflow: w, isValid: isValid})
}

func (b *fakeBridge) NotifyError(_ context.Context, message, code string) {
	b.errors = append(b.errors, reported{message: message, code: code})
}

func newRegistered(opts Options) (*fakeBridge, *Store) {
	bridge := &fakeBridge{}
	store := NewStore()
	NewIntegration(bridge, store, opts).Register(context.Background())
	return bridge, store
}

func validWorkflow(name string) protocol.Workflow {
	return protocol.Workflow{
		"$schema":  "https://example.com/workflow.schema.json",
		"name":     name,
		"triggers": map[string]interface{}{"manual": map[string]interface{}{"type": "manual"}},
		"actions":  map[string]interface{}{"a1": map[string]interface{}{"type": "noop"}},
	}
}

func boolPtr(b bool) *bool { return &b }
