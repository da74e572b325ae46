// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hook

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRunCapturesCombinedOutput(t *testing.T) {
	result := Run(context.Background(), Hook{"sh", "-c", "echo visible; echo complaint >&2"})
	if result.Failed() {
		t.Fatalf("hook failed: %v", result.Err)
	}
	for _, want := range []string{"visible", "complaint"} {
		if !strings.Contains(result.Output, want) {
			t.Errorf("output %q missing %q", result.Output, want)
		}
	}
}

func TestRunAppendsExtraArgs(t *testing.T) {
	result := Run(context.Background(), Hook{"sh", "-c", `printf '%s' "$1"`, "hook"}, "etc/motd")
	if result.Failed() {
		t.Fatalf("hook failed: %v", result.Err)
	}
	if result.Output != "etc/motd" {
		t.Fatalf("appended argument not seen by command: %q", result.Output)
	}
	want := []string{"sh", "-c", `printf '%s' "$1"`, "hook", "etc/motd"}
	if len(result.Argv) != len(want) || result.Argv[len(result.Argv)-1] != "etc/motd" {
		t.Fatalf("recorded argv %v, want %v", result.Argv, want)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	result := Run(context.Background(), Hook{"sh", "-c", "echo broken config; exit 3"})
	if !result.Failed() {
		t.Fatal("exit 3 did not fail the hook")
	}
	if result.CommandMissing() {
		t.Fatal("exit failure misreported as a missing command")
	}
	if !strings.Contains(result.Err.Error(), "broken config") {
		t.Fatalf("error %q does not carry the command's output", result.Err)
	}
	if result.Output != "broken config" {
		t.Fatalf("output = %q, want the command's message", result.Output)
	}
}

func TestRunMissingCommand(t *testing.T) {
	result := Run(context.Background(), Hook{"steward-no-such-hook-binary"})
	if !result.Failed() {
		t.Fatal("missing command did not fail the hook")
	}
	if !result.CommandMissing() {
		t.Fatalf("CommandMissing false for %v", result.Err)
	}
}

func TestRunEmptyHook(t *testing.T) {
	result := Run(context.Background(), nil)
	if !result.Failed() {
		t.Fatal("empty hook did not fail")
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := Run(ctx, Hook{"sh", "-c", "sleep 10"})
	if !result.Failed() {
		t.Fatal("cancelled context did not fail the hook")
	}
	if !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("error %v does not unwrap to context.Canceled", result.Err)
	}
}

func TestHookString(t *testing.T) {
	h := Hook{"systemctl", "reload", "sshd"}
	if got := h.String(); got != "systemctl reload sshd" {
		t.Fatalf("String() = %q", got)
	}
}
