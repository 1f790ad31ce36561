// Package buildinfo carries the version metadata stamped into the
// binary at build time. The version string doubles as the sw_version
// field of the Home Assistant device registry entry.
package buildinfo

import (
	"fmt"
	"runtime"
)

// Set via -ldflags at build time; the defaults identify an unstamped
// development build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the stamped build metadata plus the toolchain and
// platform the binary was compiled for.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a one-line summary for logging.
func String() string {
	return fmt.Sprintf("BeerPi %s (%s) built %s", Version, Commit, BuildTime)
}
