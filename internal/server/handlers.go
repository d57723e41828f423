package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/morezero/designer-bridge/pkg/db"
	"github.com/morezero/designer-bridge/pkg/dispatcher"
	"github.com/morezero/designer-bridge/pkg/mode"
	"github.com/morezero/designer-bridge/pkg/semver"
)

const handlersLogPrefix = "server:handlers"

// designerView summarizes the designer state without the workflow body.
type designerView struct {
	HasWorkflow bool   `json:"hasWorkflow"`
	MasterID    string `json:"masterId,omitempty"`
	ReadOnly    bool   `json:"readOnly"`
	UnitTest    bool   `json:"unitTest"`
	Language    string `json:"language,omitempty"`
	DarkMode    bool   `json:"darkMode"`
	Revision    int    `json:"revision"`
}

// statusView is the /status response and the home page model.
type statusView struct {
	SessionID       string            `json:"sessionId"`
	ProtocolVersion string            `json:"protocolVersion"`
	Transport       string            `json:"transport"`
	Detection       mode.Detection    `json:"detection"`
	Dispatcher      dispatcher.Status `json:"dispatcher"`
	PeerConnected   *bool             `json:"peerConnected,omitempty"`
	AuditDropped    *int64            `json:"auditDropped,omitempty"`
	Designer        designerView      `json:"designer"`
	Started         string            `json:"started"`
	Timestamp       string            `json:"timestamp"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/sessions", s.handleSessions)
	if s.ws != nil {
		mux.Handle("/ws", s.ws)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - json encode: %v", handlersLogPrefix, err))
	}
}

// status reads the dispatcher on its loop and the designer store.
func (s *Server) status(ctx context.Context) (*statusView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HealthCheckTimeout)
	defer cancel()

	ds, err := s.loop.Status(ctx)
	if err != nil {
		return nil, err
	}
	st := s.store.Snapshot()
	v := &statusView{
		SessionID:       s.sessionID,
		ProtocolVersion: semver.ProtocolVersion,
		Transport:       s.cfg.Transport,
		Detection:       s.detection,
		Dispatcher:      ds,
		Designer: designerView{
			HasWorkflow: st.Workflow != nil,
			MasterID:    st.MasterID,
			ReadOnly:    st.ReadOnly,
			UnitTest:    st.UnitTest,
			Language:    st.Language,
			DarkMode:    st.DarkMode,
			Revision:    st.Revision,
		},
		Started:   s.started.Format(time.RFC3339),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.ws != nil {
		connected := s.ws.Connected()
		v.PeerConnected = &connected
	}
	if s.audit != nil {
		dropped := s.audit.Dropped()
		v.AuditDropped = &dropped
	}
	return v, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.status(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "sessionId": s.sessionID})
}

// handleReady answers 200 once the dispatcher announced READY. A standalone
// editor never announces, so it is always ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	v, err := s.status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	if !v.Dispatcher.Embedded {
		writeJSON(w, http.StatusOK, map[string]string{"status": "standalone"})
		return
	}
	if !v.Dispatcher.Ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "waiting",
			"embedded": v.Dispatcher.Embedded,
			"pending":  v.Dispatcher.Pending,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	v, err := s.status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session store not configured"})
		return
	}
	limit := db.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	sessions, err := s.sessions.ListSessions(ctx, limit)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - list sessions: %v", handlersLogPrefix, err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list sessions"})
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// homePageTemplate is the HTML for the bridge status page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Designer Bridge</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .ok { color: #0066cc; font-weight: bold; }
    .waiting { color: #cc6600; font-weight: bold; }
    .error { color: #cc0000; }
    table { border-collapse: collapse; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; width: 180px; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>Designer Bridge</h1>
  {{if .Error}}
  <p class="error">Dispatcher unavailable: {{.Error}}</p>
  {{else}}
  <section>
    <h2>Session</h2>
    <table>
      <tr><th>Session</th><td>{{.Status.SessionID}}</td></tr>
      <tr><th>Protocol</th><td>{{.Status.ProtocolVersion}}</td></tr>
      <tr><th>Transport</th><td>{{.Status.Transport}}</td></tr>
      {{if .Status.PeerConnected}}<tr><th>Peer</th><td>{{if deref .Status.PeerConnected}}connected{{else}}not connected{{end}}</td></tr>{{end}}
      <tr><th>Embedded</th><td>{{.Status.Detection.Embedded}} (frame={{.Status.Detection.InFrame}}, iframe={{.Status.Detection.HasIframe}}, mode={{.Status.Detection.HasModeFlag}})</td></tr>
      <tr><th>Dispatcher</th><td>{{if .Status.Dispatcher.Ready}}<span class="ok">ready</span>{{else}}<span class="waiting">waiting</span>{{end}}, {{.Status.Dispatcher.Pending}} pending</td></tr>
      <tr><th>Started</th><td>{{.Status.Started}}</td></tr>
    </table>
  </section>
  <section>
    <h2>Designer</h2>
    <table>
      <tr><th>Workflow</th><td>{{if .Status.Designer.HasWorkflow}}loaded (revision {{.Status.Designer.Revision}}){{else}}none{{end}}</td></tr>
      {{if .Status.Designer.MasterID}}<tr><th>Master</th><td>{{.Status.Designer.MasterID}}</td></tr>{{end}}
      <tr><th>Read-only</th><td>{{.Status.Designer.ReadOnly}}</td></tr>
      <tr><th>Unit test view</th><td>{{.Status.Designer.UnitTest}}</td></tr>
      <tr><th>Language</th><td>{{.Status.Designer.Language}}</td></tr>
      <tr><th>Dark mode</th><td>{{.Status.Designer.DarkMode}}</td></tr>
    </table>
  </section>
  {{end}}
</body>
</html>
`

type homeData struct {
	Status *statusView
	Error  string
}

// handleHome returns an HTTP handler for the bridge status page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Funcs(template.FuncMap{
		"deref": func(b *bool) bool { return b != nil && *b },
	}).Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		var data homeData
		v, err := s.status(r.Context())
		if err != nil {
			data.Error = err.Error()
		} else {
			data.Status = v
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", handlersLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
