// Package semver derives versioned control subjects from the provider version.
package semver

import (
	"fmt"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"

	"github.com/morezero/httpserver-provider/pkg/commsutil"
)

const logPrefix = "semver:version"

// ParseVersion parses a strict MAJOR.MINOR.PATCH version, with optional
// pre-release and build metadata. A leading "v" is accepted.
func ParseVersion(v string) (*masterminds.Version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(v), "v")
	sv, err := masterminds.StrictNewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version %q: %w", logPrefix, v, err)
	}
	return sv, nil
}

// ControlSubject returns the control subject for capabilityID at version,
// e.g. "wascc:http_server" at "1.4.0" gives cap.wascc.http_server.v1.
func ControlSubject(capabilityID, version string) (string, error) {
	sv, err := ParseVersion(version)
	if err != nil {
		return "", err
	}
	return commsutil.BuildCapabilitySubject(capabilityID, sv.Major()), nil
}
