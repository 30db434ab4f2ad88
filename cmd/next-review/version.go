package main

import "runtime/debug"

// version is set via -ldflags at release time.
var version = ""

// buildVersionString prefers the ldflags version, falling back to module
// build info for `go install` builds.
func buildVersionString() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}
