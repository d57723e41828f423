// Package designer is the editor's integration layer: it keeps the designer
// state the host controls and binds LOAD_WORKFLOW, UPDATE_CONFIG and
// GET_WORKFLOW to it.
package designer

import (
	"context"
	"sync"

	"github.com/morezero/designer-bridge/pkg/protocol"
)

// State is the host-controlled part of the designer state.
type State struct {
	Workflow    protocol.Workflow      `json:"workflow"`
	Connections map[string]interface{} `json:"connections"`
	Parameters  map[string]interface{} `json:"parameters"`
	MasterID    string                 `json:"masterId,omitempty"`
	ReadOnly    bool                   `json:"readOnly"`
	UnitTest    bool                   `json:"unitTest"`
	Language    string                 `json:"language,omitempty"`
	DarkMode    bool                   `json:"darkMode"`
	// Revision counts workflow commits.
	Revision int `json:"revision"`
}

// Settings is a partial update of the scalar settings; nil fields are left alone.
type Settings struct {
	ReadOnly *bool
	UnitTest *bool
	Language *string
	DarkMode *bool
}

// Empty reports whether s changes nothing.
func (s Settings) Empty() bool {
	return s.ReadOnly == nil && s.UnitTest == nil && s.Language == nil && s.DarkMode == nil
}

// Commit is the workflow-definition half of a load.
type Commit struct {
	Workflow    protocol.Workflow
	Connections map[string]interface{}
	Parameters  map[string]interface{}
	MasterID    string
}

// Listener observes workflow commits.
type Listener func(ctx context.Context, s State)

// Store holds State. Writes are expected from the dispatcher loop; reads
// may come from any goroutine.
type Store struct {
	mu        sync.RWMutex
	state     State
	listeners []Listener
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{state: State{
		Connections: map[string]interface{}{},
		Parameters:  map[string]interface{}{},
	}}
}

// Snapshot returns a copy of the current state. Nested workflow documents
// are shared and must be treated as read-only.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for workflow commits.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// ApplySettings applies a partial settings update.
func (s *Store) ApplySettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(settings)
}

// BeginLoad clears the workflow, connections and parameters and applies
// settings in a single transition.
func (s *Store) BeginLoad(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Workflow = nil
	s.state.Connections = map[string]interface{}{}
	s.state.Parameters = map[string]interface{}{}
	s.applyLocked(settings)
}

// CommitWorkflow stores c atomically and notifies listeners when the
// committed workflow is non-nil.
func (s *Store) CommitWorkflow(ctx context.Context, c Commit) {
	s.mu.Lock()
	s.state.Workflow = c.Workflow
	s.state.Connections = orEmpty(c.Connections)
	s.state.Parameters = orEmpty(c.Parameters)
	s.state.MasterID = c.MasterID
	s.state.Revision++
	snapshot := s.state
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if snapshot.Workflow == nil {
		return
	}
	for _, fn := range listeners {
		fn(ctx, snapshot)
	}
}

func (s *Store) applyLocked(settings Settings) {
	if settings.ReadOnly != nil {
		s.state.ReadOnly = *settings.ReadOnly
	}
	if settings.UnitTest != nil {
		s.state.UnitTest = *settings.UnitTest
	}
	if settings.Language != nil {
		s.state.Language = *settings.Language
	}
	if settings.DarkMode != nil {
		s.state.DarkMode = *settings.DarkMode
	}
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
