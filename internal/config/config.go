// Package config provides bridge configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Supported transports.
const (
	TransportNATS      = "nats"
	TransportWebSocket = "websocket"
)

// Config holds designer-bridge configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"designer-bridge"`

	// Transport carries envelopes between host and editor: nats or websocket.
	Transport string `envconfig:"TRANSPORT" default:"nats"`
	// SessionID names the editor session (empty = generate one).
	SessionID string `envconfig:"SESSION_ID"`

	// Embedding context used by mode detection. The editor is framed when
	// EDITOR_TOP_ID is set and differs from EDITOR_INSTANCE_ID.
	EditorInstanceID string `envconfig:"EDITOR_INSTANCE_ID" default:"editor"`
	EditorTopID      string `envconfig:"EDITOR_TOP_ID"`
	EditorLaunchURL  string `envconfig:"EDITOR_LAUNCH_URL"`

	// ReportInvalidLoad sends ERROR envelopes for rejected LOAD_WORKFLOW messages.
	ReportInvalidLoad bool `envconfig:"REPORT_INVALID_LOAD" default:"false"`

	// Database (optional session audit trail; empty disables it)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`
	// AuditQueueSize bounds session events waiting for the audit writer.
	AuditQueueSize int `envconfig:"AUDIT_QUEUE_SIZE" default:"256"`

	// HTTP status endpoint (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Host simulator
	HostLaunchFile         string        `envconfig:"HOST_LAUNCH_FILE"`
	HostProtocolConstraint string        `envconfig:"HOST_PROTOCOL_CONSTRAINT"`
	HostReadyTimeout       time.Duration `envconfig:"HOST_READY_TIMEOUT" default:"30s"`
	// HostEditorURL is the editor's websocket endpoint when TRANSPORT=websocket.
	HostEditorURL string `envconfig:"HOST_EDITOR_URL" default:"ws://127.0.0.1:8080/ws"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	return &c, nil
}

// ValidateForServe checks required config when running the bridge server.
func (c *Config) ValidateForServe() error {
	switch c.Transport {
	case TransportNATS:
		if c.COMMSURL == "" {
			return fmt.Errorf("%s - COMMS_URL is required for the nats transport", logPrefix)
		}
	case TransportWebSocket:
	default:
		return fmt.Errorf("%s - TRANSPORT must be %q or %q, got %q", logPrefix, TransportNATS, TransportWebSocket, c.Transport)
	}
	if c.RunMigrations && c.DatabaseURL == "" {
		return fmt.Errorf("%s - RUN_MIGRATIONS requires DATABASE_URL", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, ensure-db).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// ValidateForHost checks required config when running the host simulator.
func (c *Config) ValidateForHost() error {
	switch c.Transport {
	case TransportNATS:
		if c.COMMSURL == "" {
			return fmt.Errorf("%s - COMMS_URL is required for the host", logPrefix)
		}
	case TransportWebSocket:
		if c.HostEditorURL == "" {
			return fmt.Errorf("%s - HOST_EDITOR_URL is required with TRANSPORT=websocket", logPrefix)
		}
	default:
		return fmt.Errorf("%s - unknown TRANSPORT %q (use %s or %s)", logPrefix, c.Transport, TransportNATS, TransportWebSocket)
	}
	if c.HostReadyTimeout <= 0 {
		return fmt.Errorf("%s - HOST_READY_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}
