// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the command
// room service and CLI.
//
// Configuration is loaded from a single file specified by either the
// COMMANDROOM_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults log at info and
// enable snapshots.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${COMMANDROOM_ROOT}, and ${VAR:-default} patterns are
// expanded. Provider API keys are never stored in the file; each
// provider names the environment variable that holds its key.
//
// This package depends on no other commandroom packages.
package config
