// Package bootstrap loads launch documents: files describing the workflow
// and settings a host pushes into an editor once it is ready.
package bootstrap

import (
	"errors"

	"github.com/morezero/designer-bridge/pkg/protocol"
)

// ErrNoLaunchDocument is returned when none of the candidate paths holds a
// usable launch document.
var ErrNoLaunchDocument = errors.New("bootstrap: no launch document found")

// Default launch document locations, tried after explicit paths and HOST_LAUNCH_FILE.
var DefaultLaunchPaths = []string{"config/launch.json", "launch.json"}

// LaunchDocument is a decoded launch file.
//
//	name: order-flow
//	protocol: "^1.0.0"
//	load:
//	  workflow: {...}
//	  mode: readonly
//	config:
//	  theme: dark
type LaunchDocument struct {
	// Name labels the document in logs.
	Name string `json:"name,omitempty"`
	// Protocol is the semver constraint the editor's protocol version must satisfy.
	Protocol string `json:"protocol,omitempty"`
	// Load is sent as LOAD_WORKFLOW.
	Load *protocol.LoadWorkflowPayload `json:"load"`
	// Config, when present, is sent as UPDATE_CONFIG after the load.
	Config *protocol.UpdateConfigPayload `json:"config,omitempty"`
	// Source is the path the document was read from.
	Source string `json:"-"`
}

// Envelopes returns the envelopes the document describes, in send order.
func (d *LaunchDocument) Envelopes() []*protocol.Envelope {
	out := []*protocol.Envelope{protocol.NewLoadWorkflow(d.Load)}
	if d.Config != nil {
		out = append(out, protocol.NewUpdateConfig(d.Config))
	}
	return out
}
