// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags -X at release time. Revision, Modified and Built
// fall back to the VCS stamp the Go toolchain embeds in module builds.
var (
	Version  = "0.1.0-dev"
	Revision = ""
	Modified = ""
	Built    = ""
)

// Build describes the running binary.
type Build struct {
	Version  string
	Revision string
	Modified bool
	Built    string
}

// Current returns the build description, preferring -ldflags values
// over the embedded VCS stamp.
func Current() Build {
	build := Build{Version: Version, Revision: Revision, Modified: Modified == "true", Built: Built}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if build.Revision == "" {
					build.Revision = setting.Value
				}
			case "vcs.time":
				if build.Built == "" {
					build.Built = setting.Value
				}
			case "vcs.modified":
				if Modified == "" {
					build.Modified = setting.Value == "true"
				}
			}
		}
	}
	if len(build.Revision) > 12 {
		build.Revision = build.Revision[:12]
	}
	return build
}

func (b Build) String() string {
	revision := b.Revision
	if revision == "" {
		revision = "unknown"
	}
	if b.Modified {
		revision += "-dirty"
	}
	built := b.Built
	if built == "" {
		built = "unknown"
	}
	return fmt.Sprintf("%s (%s, %s)", b.Version, revision, built)
}

// Info returns the one-line build description the status action
// reports.
func Info() string {
	return Current().String()
}

// Banner is what binary prints for --version: its name and build, then
// the Go toolchain and platform.
func Banner(binary string) string {
	return fmt.Sprintf("%s %s\n  Go: %s\n  Platform: %s/%s",
		binary, Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
