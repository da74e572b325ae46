// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"errors"
	"io/fs"
	"testing"
)

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want FailureCause
	}{
		{"permission", fs.ErrPermission, FailurePermission},
		{"wrapped permission", &fs.PathError{Op: "mkdir", Path: "x", Err: fs.ErrPermission}, FailurePermission},
		{"exists", fs.ErrExist, FailureExists},
		{"other", errors.New("disk on fire"), FailureIO},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyFailure(tc.err); got != tc.want {
				t.Errorf("classifyFailure(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestReportTally(t *testing.T) {
	report := &Report{Outcomes: []Outcome{
		{Result: ResultApplied},
		{Result: ResultApplied},
		{Result: ResultFailed, Cause: FailureIO},
		{Result: ResultSkipped},
		{Result: ResultPending},
	}}
	tally := report.Tally()
	if tally.Applied != 2 || tally.Failed != 1 || tally.Skipped != 1 || tally.Pending != 1 {
		t.Errorf("tally = %+v", tally)
	}
	if report.Succeeded() {
		t.Error("report with failures counts as succeeded")
	}
	if got := len(report.Failures()); got != 1 {
		t.Errorf("Failures() returned %d outcomes, want 1", got)
	}

	clean := &Report{Outcomes: []Outcome{{Result: ResultApplied}}}
	if !clean.Succeeded() {
		t.Error("fully applied report does not count as succeeded")
	}
}

func TestRunStatus(t *testing.T) {
	clean := &Report{Outcomes: []Outcome{{Result: ResultApplied}}}
	failed := &Report{Outcomes: []Outcome{{Result: ResultFailed}}}
	skipped := &Report{Outcomes: []Outcome{{Result: ResultSkipped}}}

	cases := []struct {
		name       string
		scanErrors int
		report     *Report
		want       Status
	}{
		{"all clean", 0, clean, StatusSuccess},
		{"scan degraded", 3, clean, StatusScanDegraded},
		{"apply failure", 0, failed, StatusPartialFailure},
		{"skip counts as partial", 0, skipped, StatusPartialFailure},
		{"failure outweighs degraded scan", 3, failed, StatusPartialFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RunStatus(tc.scanErrors, tc.report); got != tc.want {
				t.Errorf("RunStatus(%d, %+v) = %s, want %s",
					tc.scanErrors, tc.report.Tally(), got, tc.want)
			}
		})
	}
}

func TestStatusStrings(t *testing.T) {
	if StatusSuccess.String() != "success" ||
		StatusScanDegraded.String() != "scan-degraded" ||
		StatusPartialFailure.String() != "partial-failure" {
		t.Error("status names changed; the run ledger stores these strings")
	}
	if FailureValidation.String() != "validation" || FailurePermission.String() != "permission-denied" {
		t.Error("failure cause names changed; the run ledger stores these strings")
	}
}
