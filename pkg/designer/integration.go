package designer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/designer-bridge/pkg/protocol"
)

const logPrefix = "designer:integration"

// Bridge is the part of the dispatcher the integration layer uses.
type Bridge interface {
	OnLoadWorkflow(ctx context.Context, fn func(context.Context, *protocol.LoadWorkflowPayload))
	OnUpdateConfig(ctx context.Context, fn func(context.Context, *protocol.UpdateConfigPayload))
	OnGetWorkflow(ctx context.Context, fn func(context.Context, *protocol.GetWorkflowPayload))
	Respond(ctx context.Context, requestID string, w protocol.Workflow)
	NotifyWorkflowChanged(ctx context.Context, w protocol.Workflow, isValid bool)
	NotifyError(ctx context.Context, message, code string)
}

// Options tunes the integration layer.
type Options struct {
	// ReportInvalidLoad sends an ERROR envelope when a LOAD_WORKFLOW carries
	// an invalid workflow. Off by default: invalid loads are only logged.
	ReportInvalidLoad bool
}

// Integration binds the dispatcher's handlers to a Store.
type Integration struct {
	bridge Bridge
	store  *Store
	opts   Options
}

// NewIntegration creates a new Integration.
func NewIntegration(bridge Bridge, store *Store, opts Options) *Integration {
	return &Integration{bridge: bridge, store: store, opts: opts}
}

// Register subscribes to workflow commits and registers the three handlers.
// GET_WORKFLOW goes first so queued requests find it when the dispatcher
// becomes ready. Call it once, on the dispatcher's goroutine.
func (i *Integration) Register(ctx context.Context) {
	slog.Info(fmt.Sprintf("%s - registering designer handlers", logPrefix))

	i.store.Subscribe(func(ctx context.Context, s State) {
		slog.Debug(fmt.Sprintf("%s - workflow revision %d committed, notifying host", logPrefix, s.Revision))
		i.bridge.NotifyWorkflowChanged(ctx, s.Workflow, true)
	})

	i.bridge.OnGetWorkflow(ctx, i.HandleGetWorkflow)
	i.bridge.OnLoadWorkflow(ctx, i.HandleLoadWorkflow)
	i.bridge.OnUpdateConfig(ctx, i.HandleUpdateConfig)
}

// HandleLoadWorkflow applies the load's settings, then clears and commits
// the workflow as ordered transitions. An invalid workflow still applies
// its settings but leaves the stored workflow untouched.
func (i *Integration) HandleLoadWorkflow(ctx context.Context, p *protocol.LoadWorkflowPayload) {
	slog.Info(fmt.Sprintf("%s - LOAD_WORKFLOW masterId=%q mode=%q", logPrefix, p.MasterID, p.Mode))

	settings := loadSettings(p)
	if err := p.Workflow.Validate(); err != nil {
		i.store.ApplySettings(settings)
		slog.Error(fmt.Sprintf("%s - rejecting workflow, expected { $schema, triggers, actions, ... }: %v", logPrefix, err))
		if i.opts.ReportInvalidLoad {
			code := protocol.CodeInvalidWorkflow
			message := err.Error()
			var perr *protocol.ProtocolError
			if errors.As(err, &perr) {
				code, message = perr.Code, perr.Message
			}
			i.bridge.NotifyError(ctx, message, code)
		}
		return
	}

	i.store.BeginLoad(settings)
	i.store.CommitWorkflow(ctx, Commit{
		Workflow:    p.Workflow,
		Connections: p.Connections,
		Parameters:  p.Parameters,
		MasterID:    p.MasterID,
	})
}

// HandleUpdateConfig applies whichever settings are present.
func (i *Integration) HandleUpdateConfig(_ context.Context, p *protocol.UpdateConfigPayload) {
	settings := configSettings(p)
	if settings.Empty() {
		slog.Debug(fmt.Sprintf("%s - UPDATE_CONFIG changes nothing", logPrefix))
		return
	}
	slog.Info(fmt.Sprintf("%s - UPDATE_CONFIG %+v", logPrefix, describe(settings)))
	i.store.ApplySettings(settings)
}

// HandleGetWorkflow answers with the current workflow.
func (i *Integration) HandleGetWorkflow(ctx context.Context, p *protocol.GetWorkflowPayload) {
	s := i.store.Snapshot()
	slog.Debug(fmt.Sprintf("%s - GET_WORKFLOW requestId=%s hasWorkflow=%t", logPrefix, p.RequestID, s.Workflow != nil))
	i.bridge.Respond(ctx, p.RequestID, s.Workflow)
}

// loadSettings derives settings from a load. An explicit flag wins over
// the mode; the mode only sets the flag it names.
func loadSettings(p *protocol.LoadWorkflowPayload) Settings {
	return deriveSettings(p.Mode, p.ReadOnly, p.UnitTestView, p.Locale, p.Theme)
}

func configSettings(p *protocol.UpdateConfigPayload) Settings {
	return deriveSettings(p.Mode, p.ReadOnly, p.UnitTestView, p.Locale, p.Theme)
}

func deriveSettings(mode protocol.EditorMode, readOnly, unitTest *bool, locale string, theme protocol.Theme) Settings {
	var s Settings
	if readOnly != nil {
		v := *readOnly
		s.ReadOnly = &v
	} else if mode == protocol.ModeReadOnly {
		v := true
		s.ReadOnly = &v
	}
	if unitTest != nil {
		v := *unitTest
		s.UnitTest = &v
	} else if mode == protocol.ModeUnitTest {
		v := true
		s.UnitTest = &v
	}
	if locale != "" {
		v := locale
		s.Language = &v
	}
	if theme != "" {
		v := theme == protocol.ThemeDark
		s.DarkMode = &v
	}
	return s
}

func describe(s Settings) map[string]interface{} {
	out := map[string]interface{}{}
	if s.ReadOnly != nil {
		out["readOnly"] = *s.ReadOnly
	}
	if s.UnitTest != nil {
		out["unitTest"] = *s.UnitTest
	}
	if s.Language != nil {
		out["language"] = *s.Language
	}
	if s.DarkMode != nil {
		out["darkMode"] = *s.DarkMode
	}
	return out
}
