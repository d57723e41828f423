package commsutil

import (
	"testing"

	"github.com/morezero/designer-bridge/pkg/protocol"
)

const codecTestPrefix = "commsutil:codec_test"

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    string
		wantErr bool
	}{
		{name: "simple map", input: map[string]string{"key": "value"}, want: `{"key":"value"}`},
		{name: "nil", input: nil, want: "null"},
		{name: "channel is not serializable", input: make(chan int), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePayload(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("%s - expected error but got nil", codecTestPrefix)
				}
				return
			}
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
			}
			if string(data) != tt.want {
				t.Errorf("%s - EncodePayload() = %q, want %q", codecTestPrefix, data, tt.want)
			}
		})
	}
}

func TestEncodeEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		env     *protocol.Envelope
		want    string
		wantErr bool
	}{
		{name: "ready", env: protocol.NewReady(), want: `{"type":"READY"}`},
		{name: "get", env: protocol.NewGetWorkflow("r1"), want: `{"type":"GET_WORKFLOW","requestId":"r1"}`},
		{name: "error", env: protocol.NewError("boom", ""), want: `{"type":"ERROR","payload":{"message":"boom"}}`},
		{name: "nil envelope", env: nil, wantErr: true},
		{name: "no type", env: &protocol.Envelope{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEnvelope(tt.env)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("%s - expected error but got nil", codecTestPrefix)
				}
				return
			}
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
			}
			if string(data) != tt.want {
				t.Errorf("%s - EncodeEnvelope() = %s, want %s", codecTestPrefix, data, tt.want)
			}
		})
	}
}

func TestDecodeEnvelope_RejectsGarbage(t *testing.T) {
	if _, err := DecodeEnvelope([]byte("not json")); err == nil {
		t.Fatalf("%s - expected error for garbage frame", codecTestPrefix)
	}
}
