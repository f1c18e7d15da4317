// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates a structured logger for CLI commands. When
// stderr is a terminal it uses slog.TextHandler for human-readable
// output; when stderr is piped or redirected it uses slog.JSONHandler,
// matching the service's log format.
//
// Callers scope the logger with command context via With():
//
//	logger := cli.NewCommandLogger(verbose).With("command", "watch", "room", roomID)
func NewCommandLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
