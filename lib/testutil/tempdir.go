// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"testing"
)

// SocketDir creates a short-named directory under /tmp for Unix
// sockets and removes it when the test ends. t.TempDir() can exceed the
// sun_path limit when TMPDIR is deeply nested.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "cr-")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(directory) })
	return directory
}
