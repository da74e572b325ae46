// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without printing an extra
// error message. When a command handler returns an ExitError, main
// exits with the specified code without printing the error string —
// the command is expected to have already written its own output.
//
// steward apply uses this to exit 1 on partial failure after the
// report has been printed: the non-zero exit is a valid outcome, not
// an unexpected error to display.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this interface on
// returned errors to distinguish "handled non-zero exit" from
// "unexpected error to display".
func (e *ExitError) ExitCode() int {
	return e.Code
}

// UsageError is an invocation mistake: unknown command, bad flag,
// missing required configuration. It exits 2 and, unlike ExitError,
// its message is printed.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// ExitCode returns 2, steward's usage exit code.
func (e *UsageError) ExitCode() int {
	return 2
}

// Usagef builds a UsageError the way fmt.Errorf builds an error.
func Usagef(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}
