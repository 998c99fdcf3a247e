package client

import (
	"fmt"

	"github.com/maloquacious/semver"
)

var version = semver.Version{
	Major: 0,
	Minor: 3,
	Patch: 0,
	Build: semver.Commit(),
}

// Version returns the library version, including the VCS commit when the
// binary was built from a checkout.
func Version() semver.Version {
	return version
}

// VersionString renders Version as major.minor.patch with the build suffix
// when one is known.
func VersionString() string {
	v := Version()
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if b := fmt.Sprint(v.Build); b != "" {
		s += "+" + b
	}
	return s
}
