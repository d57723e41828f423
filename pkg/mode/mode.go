// Package mode decides once, at startup, whether the editor runs embedded in
// a host or standalone.
package mode

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

const logPrefix = "mode:Detect"

// Query parameters that force embedded mode.
const (
	ParamIframe = "iframe"
	ParamMode   = "mode"
	ValueIframe = "iframe"
)

// Environment is the ambient state the detector looks at.
type Environment struct {
	// Self identifies this editor instance.
	Self string
	// Top identifies the top-level container holding it. Empty means the
	// instance is its own top-level container.
	Top string
	// Query is the launch query string.
	Query url.Values
}

// Detection records why Detect decided what it did.
type Detection struct {
	InFrame     bool `json:"inFrame"`
	HasIframe   bool `json:"iframeParam"`
	HasModeFlag bool `json:"modeParam"`
	Embedded    bool `json:"embedded"`
}

// Inspect evaluates env without logging.
func Inspect(env Environment) Detection {
	d := Detection{
		InFrame: env.Top != "" && env.Top != env.Self,
	}
	if env.Query != nil {
		d.HasIframe = env.Query.Has(ParamIframe)
		d.HasModeFlag = env.Query.Get(ParamMode) == ValueIframe
	}
	d.Embedded = d.InFrame || d.HasIframe || d.HasModeFlag
	return d
}

// Explain evaluates env once and logs the decision with its reasons.
func Explain(env Environment) Detection {
	d := Inspect(env)
	slog.Info(fmt.Sprintf("%s - inFrame=%t iframeParam=%t modeParam=%t embedded=%t",
		logPrefix, d.InFrame, d.HasIframe, d.HasModeFlag, d.Embedded))
	return d
}

// Detect reports whether the editor operates in embedded mode.
func Detect(env Environment) bool {
	return Explain(env).Embedded
}

// ParseLaunchQuery extracts the query string from a launch URL. A bare
// query ("iframe&mode=x" or "?iframe") is accepted too.
func ParseLaunchQuery(launch string) (url.Values, error) {
	launch = strings.TrimSpace(launch)
	if launch == "" {
		return url.Values{}, nil
	}
	raw := launch
	if strings.Contains(launch, "://") || strings.HasPrefix(launch, "/") {
		u, err := url.Parse(launch)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid launch URL: %w", logPrefix, err)
		}
		raw = u.RawQuery
	}
	q, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return nil, fmt.Errorf("%s - invalid launch query: %w", logPrefix, err)
	}
	return q, nil
}
