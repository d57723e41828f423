package bootstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/morezero/designer-bridge/pkg/protocol"
)

const logPrefix = "bootstrap:loader"

// Format is a launch document encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the format from the file extension. Anything that is
// not .yaml or .yml is read as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadLaunchDocument loads the first usable launch document.
// It tries paths in order: first any paths passed in, then HOST_LAUNCH_FILE env, then defaults.
// Unreadable or invalid files are skipped with a warning.
func LoadLaunchDocument(paths ...string) (*LaunchDocument, error) {
	all := make([]string, 0, len(paths)+len(DefaultLaunchPaths)+1)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("HOST_LAUNCH_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, DefaultLaunchPaths...)

	var lastErr error
	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		doc, err := ParseLaunchDocument(data, FormatForPath(p))
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse launch document %s: %v", logPrefix, p, err))
			lastErr = err
			continue
		}

		doc.Source = p
		slog.Info(fmt.Sprintf("%s - Loaded launch document %q from %s", logPrefix, doc.Name, p))
		return doc, nil
	}

	if lastErr != nil {
		return nil, errors.Join(ErrNoLaunchDocument, lastErr)
	}
	return nil, ErrNoLaunchDocument
}

// ParseLaunchDocument decodes data. The load and config sections are checked
// with the same decoder used for envelopes on the wire.
func ParseLaunchDocument(data []byte, format Format) (*LaunchDocument, error) {
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		data = converted
	}

	var raw struct {
		Name     string          `json:"name"`
		Protocol string          `json:"protocol"`
		Load     json.RawMessage `json:"load"`
		Config   json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s - invalid document: %w", logPrefix, err)
	}
	if len(raw.Load) == 0 {
		return nil, fmt.Errorf("%s - document has no load section", logPrefix)
	}

	doc := &LaunchDocument{Name: raw.Name, Protocol: raw.Protocol}

	env, err := decodeSection(protocol.KindLoadWorkflow, raw.Load)
	if err != nil {
		return nil, err
	}
	doc.Load = env.Payload.(*protocol.LoadWorkflowPayload)

	if len(raw.Config) > 0 && string(raw.Config) != "null" {
		env, err := decodeSection(protocol.KindUpdateConfig, raw.Config)
		if err != nil {
			return nil, err
		}
		if p, ok := env.Payload.(*protocol.UpdateConfigPayload); ok {
			doc.Config = p
		}
	}

	return doc, nil
}

func decodeSection(kind protocol.Kind, payload json.RawMessage) (*protocol.Envelope, error) {
	wire, err := json.Marshal(struct {
		Type    protocol.Kind   `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}{Type: kind, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to wrap %s section: %w", logPrefix, kind, err)
	}
	env, err := protocol.Decode(wire)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid %s section: %w", logPrefix, kind, err)
	}
	return env, nil
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share one decoder.
func yamlToJSON(data []byte) ([]byte, error) {
	var v interface{}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%s - invalid YAML: %w", logPrefix, err)
	}
	out, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, fmt.Errorf("%s - YAML document is not representable as JSON: %w", logPrefix, err)
	}
	return out, nil
}

// normalizeYAML turns map[interface{}]interface{} nodes, which YAML allows
// for non-string keys, into JSON-compatible maps.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
