// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"errors"
	"io/fs"
)

// Result classifies how one action ended.
type Result uint8

const (
	// ResultApplied: the action ran and succeeded.
	ResultApplied Result = iota

	// ResultPending: dry run; the action would have run.
	ResultPending

	// ResultFailed: the action ran and errored. Err is set.
	ResultFailed

	// ResultSkipped: the action did not run because a prerequisite
	// failed or the run was cancelled. Reason is set.
	ResultSkipped
)

// String returns the result name used in reports and logs.
func (r Result) String() string {
	switch r {
	case ResultApplied:
		return "applied"
	case ResultPending:
		return "pending"
	case ResultFailed:
		return "failed"
	case ResultSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// FailureCause classifies a failed action for the report and the run
// ledger.
type FailureCause uint8

const (
	// FailureNone: the action did not fail.
	FailureNone FailureCause = iota

	// FailurePermission: the filesystem refused (EPERM/EACCES),
	// including denied chown calls.
	FailurePermission

	// FailureExists: something already occupies the path.
	FailureExists

	// FailureValidation: a validate hook rejected the entry before
	// apply; the filesystem was not touched.
	FailureValidation

	// FailureIO: any other failure.
	FailureIO
)

// String returns the cause name used in reports and logs.
func (c FailureCause) String() string {
	switch c {
	case FailureNone:
		return "none"
	case FailurePermission:
		return "permission-denied"
	case FailureExists:
		return "target-exists"
	case FailureValidation:
		return "validation"
	case FailureIO:
		return "io"
	default:
		return "unknown"
	}
}

// classifyFailure maps an action error to its cause.
func classifyFailure(err error) FailureCause {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return FailurePermission
	case errors.Is(err, fs.ErrExist):
		return FailureExists
	default:
		return FailureIO
	}
}

// Outcome is one action's result.
type Outcome struct {
	Action Action
	Result Result

	// Cause is set when Result is ResultFailed.
	Cause FailureCause

	// Reason explains a skip.
	Reason string

	// Err is the failure, when Result is ResultFailed.
	Err error
}

// Report is the full account of one apply run, one outcome per planned
// action, in execution order.
type Report struct {
	DryRun   bool
	Outcomes []Outcome
}

// Tally counts outcomes by result.
type Tally struct {
	Applied int
	Pending int
	Failed  int
	Skipped int
}

// Tally counts the report's outcomes.
func (r *Report) Tally() Tally {
	var t Tally
	for _, outcome := range r.Outcomes {
		switch outcome.Result {
		case ResultApplied:
			t.Applied++
		case ResultPending:
			t.Pending++
		case ResultFailed:
			t.Failed++
		case ResultSkipped:
			t.Skipped++
		}
	}
	return t
}

// Succeeded reports whether every action ran and none failed. A dry
// run with a non-empty plan does not count as succeeded; nothing was
// reconciled.
func (r *Report) Succeeded() bool {
	t := r.Tally()
	return t.Failed == 0 && t.Skipped == 0 && t.Pending == 0
}

// Failures returns the failed outcomes, for logs and the run ledger.
func (r *Report) Failures() []Outcome {
	var failed []Outcome
	for _, outcome := range r.Outcomes {
		if outcome.Result == ResultFailed {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// Status is the overall verdict of one run, covering both the scan
// and the apply phases. The CLI derives its exit code from it.
type Status uint8

const (
	// StatusSuccess: everything scanned and every action applied.
	StatusSuccess Status = iota

	// StatusScanDegraded: the apply succeeded but parts of a tree
	// could not be scanned, so the run may have missed drift.
	StatusScanDegraded

	// StatusPartialFailure: at least one action failed or was skipped.
	StatusPartialFailure
)

// String returns the status name used in output and the run ledger.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusScanDegraded:
		return "scan-degraded"
	case StatusPartialFailure:
		return "partial-failure"
	default:
		return "unknown"
	}
}

// RunStatus combines scan health and the apply report into the run
// verdict. Failed or skipped actions outweigh scan degradation.
func RunStatus(scanErrors int, report *Report) Status {
	tally := report.Tally()
	if tally.Failed > 0 || tally.Skipped > 0 {
		return StatusPartialFailure
	}
	if scanErrors > 0 {
		return StatusScanDegraded
	}
	return StatusSuccess
}
