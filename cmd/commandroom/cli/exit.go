// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without printing an extra
// error message. The command has already written its own output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}
