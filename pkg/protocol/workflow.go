package protocol

import "strings"

// Workflow is a workflow definition document. The bridge treats it as
// opaque JSON apart from the top-level markers checked by Validate.
type Workflow map[string]interface{}

// Required top-level workflow markers.
var workflowMarkers = []string{"$schema", "triggers", "actions"}

// Validate checks that the schema marker, triggers and actions are present
// and non-empty scalars (an empty object counts as present).
func (w Workflow) Validate() error {
	if w == nil {
		return NewProtocolError(CodeInvalidWorkflow, "workflow is missing")
	}
	var missing []string
	for _, key := range workflowMarkers {
		if !truthy(w[key]) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return NewProtocolError(CodeInvalidWorkflow, "workflow is missing "+strings.Join(missing, ", "))
	}
	return nil
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
