package commsutil

import (
	"encoding/json"
	"fmt"

	"github.com/morezero/designer-bridge/pkg/protocol"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// EncodeEnvelope serializes an envelope for a transport frame.
func EncodeEnvelope(env *protocol.Envelope) ([]byte, error) {
	if env == nil || env.Type == "" {
		return nil, fmt.Errorf("commsutil:codec - envelope has no type")
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses and validates a transport frame.
func DecodeEnvelope(data []byte) (*protocol.Envelope, error) {
	return protocol.Decode(data)
}
