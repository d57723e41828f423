package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectPrefix        = "designer"
	SubjectSessionEvents = "designer.sessions.>"
)

var subjectReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// SafeToken makes s usable as a single subject token.
func SafeToken(s string) string {
	return subjectReplacer.Replace(strings.TrimSpace(s))
}

// BuildToEditorSubject is where a host publishes envelopes for a session's editor.
func BuildToEditorSubject(sessionID string) string {
	return fmt.Sprintf("%s.%s.to_editor", SubjectPrefix, SafeToken(sessionID))
}

// BuildToHostSubject is where a session's editor publishes envelopes for its host.
func BuildToHostSubject(sessionID string) string {
	return fmt.Sprintf("%s.%s.to_host", SubjectPrefix, SafeToken(sessionID))
}

// BuildSessionEventSubject builds the lifecycle event subject for an event type.
func BuildSessionEventSubject(eventType string) string {
	return fmt.Sprintf("%s.sessions.%s", SubjectPrefix, SafeToken(eventType))
}
