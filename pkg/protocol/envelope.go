// Package protocol defines the envelope schema exchanged between a host page
// and an embedded designer editor.
package protocol

// Kind is the envelope discriminant.
type Kind string

// Host → editor kinds.
const (
	KindLoadWorkflow Kind = "LOAD_WORKFLOW"
	KindUpdateConfig Kind = "UPDATE_CONFIG"
	KindGetWorkflow  Kind = "GET_WORKFLOW"
)

// Editor → host kinds.
const (
	KindWorkflowChanged  Kind = "WORKFLOW_CHANGED"
	KindWorkflowResponse Kind = "WORKFLOW_RESPONSE"
	KindReady            Kind = "READY"
	KindError            Kind = "ERROR"
)

// KnownKinds lists every kind this version of the protocol understands.
var KnownKinds = []Kind{
	KindLoadWorkflow,
	KindUpdateConfig,
	KindGetWorkflow,
	KindWorkflowChanged,
	KindWorkflowResponse,
	KindReady,
	KindError,
}

// Known reports whether k is one of KnownKinds.
func (k Kind) Known() bool {
	for _, known := range KnownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ToEditor reports whether k travels from the host to the editor.
func (k Kind) ToEditor() bool {
	return k == KindLoadWorkflow || k == KindUpdateConfig || k == KindGetWorkflow
}

// Envelope is the JSON unit carried by a transport. After Decode, Payload
// holds the typed record for Type (e.g. *LoadWorkflowPayload), or the raw
// JSON for kinds this version does not know.
type Envelope struct {
	Type      Kind        `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

// EditorMode is the editing mode requested by the host.
type EditorMode string

// Editor modes.
const (
	ModeReadOnly EditorMode = "readonly"
	ModeEdit     EditorMode = "edit"
	ModeUnitTest EditorMode = "unittest"
)

// Theme is the color theme requested by the host.
type Theme string

// Themes.
const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// LoadWorkflowPayload replaces the editor's workflow and applies settings.
type LoadWorkflowPayload struct {
	Workflow     Workflow               `json:"workflow"`
	Connections  map[string]interface{} `json:"connections,omitempty"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	Mode         EditorMode             `json:"mode,omitempty"`
	Locale       string                 `json:"locale,omitempty"`
	Theme        Theme                  `json:"theme,omitempty"`
	MasterID     string                 `json:"masterId,omitempty"`
	ReadOnly     *bool                  `json:"readOnly,omitempty"`
	UnitTestView *bool                  `json:"unitTestView,omitempty"`
}

// UpdateConfigPayload is a partial settings update; nil/empty fields are left untouched.
type UpdateConfigPayload struct {
	Mode         EditorMode `json:"mode,omitempty"`
	Locale       string     `json:"locale,omitempty"`
	Theme        Theme      `json:"theme,omitempty"`
	ReadOnly     *bool      `json:"readOnly,omitempty"`
	UnitTestView *bool      `json:"unitTestView,omitempty"`
}

// GetWorkflowPayload is what a GET_WORKFLOW handler receives.
type GetWorkflowPayload struct {
	RequestID string `json:"requestId"`
}

// WorkflowChangedPayload notifies the host of a committed workflow.
type WorkflowChangedPayload struct {
	Workflow Workflow `json:"workflow"`
	IsValid  bool     `json:"isValid"`
}

// WorkflowResponsePayload answers a GET_WORKFLOW request.
type WorkflowResponsePayload struct {
	Workflow Workflow `json:"workflow"`
}

// ErrorPayload reports an editor-side failure to the host.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewLoadWorkflow builds a LOAD_WORKFLOW envelope.
func NewLoadWorkflow(p *LoadWorkflowPayload) *Envelope {
	return &Envelope{Type: KindLoadWorkflow, Payload: p}
}

// NewUpdateConfig builds an UPDATE_CONFIG envelope.
func NewUpdateConfig(p *UpdateConfigPayload) *Envelope {
	return &Envelope{Type: KindUpdateConfig, Payload: p}
}

// NewGetWorkflow builds a GET_WORKFLOW envelope.
func NewGetWorkflow(requestID string) *Envelope {
	return &Envelope{Type: KindGetWorkflow, RequestID: requestID}
}

// NewReady builds a READY envelope.
func NewReady() *Envelope {
	return &Envelope{Type: KindReady}
}

// NewWorkflowChanged builds a WORKFLOW_CHANGED envelope.
func NewWorkflowChanged(w Workflow, isValid bool) *Envelope {
	return &Envelope{Type: KindWorkflowChanged, Payload: &WorkflowChangedPayload{Workflow: w, IsValid: isValid}}
}

// NewWorkflowResponse builds a WORKFLOW_RESPONSE envelope correlated by requestID.
func NewWorkflowResponse(requestID string, w Workflow) *Envelope {
	return &Envelope{Type: KindWorkflowResponse, RequestID: requestID, Payload: &WorkflowResponsePayload{Workflow: w}}
}

// NewError builds an ERROR envelope.
func NewError(message, code string) *Envelope {
	return &Envelope{Type: KindError, Payload: &ErrorPayload{Message: message, Code: code}}
}
