// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Hook is a command to run: program first, fixed arguments after.
type Hook []string

// String renders the hook the way a shell user would type it.
func (h Hook) String() string {
	return strings.Join(h, " ")
}

// Result records one hook execution. Output is the combined, trimmed
// stdout and stderr regardless of success; Err is nil when the command
// ran and exited zero.
type Result struct {
	Argv     []string
	Output   string
	Duration time.Duration
	Err      error
}

// Failed reports whether the hook did not run or exited non-zero.
func (r *Result) Failed() bool { return r.Err != nil }

// CommandMissing reports whether the failure was the program not
// existing on this host, as opposed to the program running and
// objecting.
func (r *Result) CommandMissing() bool {
	return errors.Is(r.Err, exec.ErrNotFound)
}

// Run executes the hook with extraArgs appended to its argv, capturing
// combined output. The context bounds the whole execution; a context
// cancelled before the program starts surfaces as the context's error.
func Run(ctx context.Context, h Hook, extraArgs ...string) Result {
	result := Result{Argv: append(append([]string{}, h...), extraArgs...)}
	if len(h) == 0 {
		result.Err = errors.New("empty hook")
		return result
	}

	var output bytes.Buffer
	command := exec.CommandContext(ctx, result.Argv[0], result.Argv[1:]...)
	command.Stdout = &output
	command.Stderr = &output

	start := time.Now()
	err := command.Run()
	result.Duration = time.Since(start)
	result.Output = strings.TrimSpace(output.String())

	if err != nil {
		if result.Output != "" {
			result.Err = fmt.Errorf("%s: %w (output: %s)", result.Argv[0], err, result.Output)
		} else {
			result.Err = fmt.Errorf("%s: %w", result.Argv[0], err)
		}
	}
	return result
}
