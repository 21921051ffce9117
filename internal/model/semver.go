package model

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ParseSemver parses a full semantic version the way npm does: a leading
// "v" or "=" is tolerated, missing minor or patch parts are not.
func ParseSemver(version string) (*semver.Version, error) {
	v := strings.TrimSpace(version)
	v = strings.TrimPrefix(v, "=")
	v = strings.TrimPrefix(v, "v")
	return semver.StrictNewVersion(v)
}

// MinorLine identifies a major.minor release line.
type MinorLine struct {
	Major uint64
	Minor uint64
}

// LineOf returns the major.minor line of a parsed version.
func LineOf(v *semver.Version) MinorLine {
	return MinorLine{Major: v.Major(), Minor: v.Minor()}
}
