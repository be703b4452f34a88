package jiggler

import (
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var builtAppVersion = "0.1.0+dev"

const systemVersionPath = "/version"

// GetLocalVersion returns the version of this binary and, when the root
// filesystem carries one, the system image version.
func GetLocalVersion() (systemVersion *semver.Version, appVersion *semver.Version, err error) {
	appVersion, err = semver.NewVersion(builtAppVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid built-in app version: %w", err)
	}

	systemVersionBytes, err := os.ReadFile(systemVersionPath)
	if err != nil {
		return nil, appVersion, fmt.Errorf("error reading system version: %w", err)
	}

	systemVersion, err = semver.NewVersion(strings.TrimSpace(string(systemVersionBytes)))
	if err != nil {
		return nil, appVersion, fmt.Errorf("invalid system version: %w", err)
	}

	return systemVersion, appVersion, nil
}
