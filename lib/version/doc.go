// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package version describes the build of the commandroom binaries.
//
// Release builds stamp it with -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/nexus-goc/commandroom/lib/version.Version=1.2.0"
//
// Development builds take the revision and build time from the VCS
// information the Go toolchain embeds. [Banner] is the --version output
// of each binary; [Info] is the line the service reports from status.
package version
