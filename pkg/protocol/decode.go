package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// wireEnvelope is the undecoded form of an Envelope.
type wireEnvelope struct {
	Type      Kind            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// Decode parses and validates one envelope. Known kinds get their typed
// payload record; kinds this version does not know are returned with the
// raw payload so the dispatcher can ignore them. Malformed envelopes and
// invalid payloads for known kinds return a *ProtocolError.
func Decode(data []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, NewProtocolError(CodeInvalidEnvelope, fmt.Sprintf("malformed envelope: %v", err))
	}
	if w.Type == "" {
		return nil, NewProtocolError(CodeInvalidEnvelope, "envelope has no type")
	}

	env := &Envelope{Type: w.Type, RequestID: w.RequestID}

	switch w.Type {
	case KindLoadWorkflow:
		var p LoadWorkflowPayload
		if err := decodePayload(w, &p, true); err != nil {
			return nil, err
		}
		if err := p.validate(); err != nil {
			return nil, err
		}
		env.Payload = &p
	case KindUpdateConfig:
		var p UpdateConfigPayload
		if err := decodePayload(w, &p, false); err != nil {
			return nil, err
		}
		if err := validateSettings(p.Mode, p.Theme); err != nil {
			return nil, err
		}
		env.Payload = &p
	case KindGetWorkflow:
		if w.RequestID == "" {
			return nil, NewProtocolError(CodeInvalidPayload, "GET_WORKFLOW requires requestId")
		}
		env.Payload = &GetWorkflowPayload{RequestID: w.RequestID}
	case KindWorkflowChanged:
		var p WorkflowChangedPayload
		if err := decodePayload(w, &p, true); err != nil {
			return nil, err
		}
		env.Payload = &p
	case KindWorkflowResponse:
		if w.RequestID == "" {
			return nil, NewProtocolError(CodeInvalidPayload, "WORKFLOW_RESPONSE requires requestId")
		}
		var p WorkflowResponsePayload
		if err := decodePayload(w, &p, false); err != nil {
			return nil, err
		}
		env.Payload = &p
	case KindReady:
		env.Payload = nil
	case KindError:
		var p ErrorPayload
		if err := decodePayload(w, &p, true); err != nil {
			return nil, err
		}
		if p.Message == "" {
			return nil, NewProtocolError(CodeInvalidPayload, "ERROR requires message")
		}
		env.Payload = &p
	default:
		if len(w.Payload) > 0 {
			env.Payload = w.Payload
		}
	}
	return env, nil
}

func decodePayload(w wireEnvelope, target interface{}, required bool) error {
	if len(w.Payload) == 0 || bytes.Equal(bytes.TrimSpace(w.Payload), []byte("null")) {
		if required {
			return NewProtocolError(CodeInvalidPayload, fmt.Sprintf("%s requires a payload", w.Type))
		}
		return nil
	}
	if err := json.Unmarshal(w.Payload, target); err != nil {
		return NewProtocolError(CodeInvalidPayload, fmt.Sprintf("%s payload: %v", w.Type, err))
	}
	return nil
}

func (p *LoadWorkflowPayload) validate() error {
	if p.Workflow == nil {
		return NewProtocolError(CodeInvalidPayload, "LOAD_WORKFLOW requires a workflow object")
	}
	return validateSettings(p.Mode, p.Theme)
}

func validateSettings(mode EditorMode, theme Theme) error {
	switch mode {
	case "", ModeReadOnly, ModeEdit, ModeUnitTest:
	default:
		return NewProtocolError(CodeInvalidPayload, fmt.Sprintf("unknown mode %q", mode))
	}
	switch theme {
	case "", ThemeLight, ThemeDark:
	default:
		return NewProtocolError(CodeInvalidPayload, fmt.Sprintf("unknown theme %q", theme))
	}
	return nil
}
