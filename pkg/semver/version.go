// Package semver handles protocol version compatibility between hosts and editors.
package semver

import (
	"fmt"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:version"

// ProtocolVersion is the envelope protocol version this module speaks.
const ProtocolVersion = "1.0.0"

// ParseVersion parses a strict semantic version.
func ParseVersion(s string) (*masterminds.Version, error) {
	v, err := masterminds.StrictNewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version %q: %w", logPrefix, s, err)
	}
	return v, nil
}

// DefaultConstraint accepts any version with the same major as version.
func DefaultConstraint(version string) (string, error) {
	v, err := ParseVersion(version)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("^%d.0.0", v.Major()), nil
}

// Compatible reports whether version satisfies constraint. An empty
// constraint accepts the same major as ProtocolVersion.
func Compatible(version, constraint string) (bool, error) {
	v, err := ParseVersion(version)
	if err != nil {
		return false, err
	}
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		constraint, _ = DefaultConstraint(ProtocolVersion)
	}
	c, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("%s - invalid constraint %q: %w", logPrefix, constraint, err)
	}
	return c.Check(v), nil
}
