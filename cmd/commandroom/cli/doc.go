// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework of the commandroom
// binary: a tree of [Command] values with pflag flag sets, help output,
// typo suggestions for commands and flags, a terminal-aware logger and
// --json output support.
package cli
