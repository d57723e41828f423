package protocol

// Protocol error codes.
const (
	CodeInvalidEnvelope = "INVALID_ENVELOPE"
	CodeInvalidPayload  = "INVALID_PAYLOAD"
	CodeInvalidWorkflow = "INVALID_WORKFLOW"
)

// ProtocolError is a structured decode or validation failure.
type ProtocolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return e.Code + ": " + e.Message
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(code, message string) *ProtocolError {
	return &ProtocolError{Code: code, Message: message}
}
