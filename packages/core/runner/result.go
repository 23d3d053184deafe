package runner

import (
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/assert"
	"github.com/abdul-hamid-achik/reqflow/packages/core/ast"
	"github.com/abdul-hamid-achik/reqflow/packages/http"
	"github.com/abdul-hamid-achik/reqflow/packages/value"
)

// ErrorClass orders run errors by severity for exit-code aggregation.
// Configuration beats parse beats runtime beats assert.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassAssert
	ClassRuntime
	ClassParse
	ClassConfig
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassAssert:
		return "assert"
	case ClassRuntime:
		return "runtime"
	case ClassParse:
		return "parse"
	case ClassConfig:
		return "configuration"
	default:
		return "unknown"
	}
}

// RunError is one surfaced entry error with its source position.
type RunError struct {
	Class ErrorClass
	Pos   ast.Position
	Msg   string
}

func (e *RunError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
	}
	return e.Msg
}

func runtimeError(pos ast.Position, format string, args ...any) *RunError {
	return &RunError{Class: ClassRuntime, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// EntryStatus is the terminal state of one entry after retries exhaust.
type EntryStatus int

const (
	StatusSuccess EntryStatus = iota
	StatusAssertFailure
	StatusRuntimeError
	StatusSkipped
)

func (s EntryStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusAssertFailure:
		return "assert-failure"
	case StatusRuntimeError:
		return "runtime-error"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// CaptureOutcome is one evaluated capture of a successful exchange.
type CaptureOutcome struct {
	Name   string
	Value  value.Value
	Redact bool
}

// EntryResult is the outcome of one entry: every attempted exchange, the
// capture and assert outcomes of the last attempt, and the terminal status.
type EntryResult struct {
	Index    int
	Attempts []*http.Exchange
	Captures []*CaptureOutcome
	Asserts  []*assert.Result
	Errors   []*RunError
	Duration time.Duration
	Status   EntryStatus
}

// Exchange returns the last attempted exchange, nil when nothing ran.
func (r *EntryResult) Exchange() *http.Exchange {
	if len(r.Attempts) == 0 {
		return nil
	}
	return r.Attempts[len(r.Attempts)-1]
}

// Class is the highest severity among the entry errors. A result carrying a
// failure status but no recorded errors still classifies by that status, so
// status and class never disagree.
func (r *EntryResult) Class() ErrorClass {
	worst := ClassNone
	for _, e := range r.Errors {
		if e.Class > worst {
			worst = e.Class
		}
	}
	if worst == ClassNone {
		switch r.Status {
		case StatusAssertFailure:
			worst = ClassAssert
		case StatusRuntimeError:
			worst = ClassRuntime
		}
	}
	return worst
}

// FileResult is the ordered entry results of one scenario file.
type FileResult struct {
	Path     string
	Entries  []*EntryResult
	Duration time.Duration
	// Err is set when the file could not run at all (parse failure).
	Err *RunError
}

// Success reports whether every entry succeeded or was skipped.
func (r *FileResult) Success() bool {
	if r.Err != nil {
		return false
	}
	for _, e := range r.Entries {
		if e.Status != StatusSuccess && e.Status != StatusSkipped {
			return false
		}
	}
	return true
}

// Class is the highest severity present in the file.
func (r *FileResult) Class() ErrorClass {
	worst := ClassNone
	if r.Err != nil {
		worst = r.Err.Class
	}
	for _, e := range r.Entries {
		if c := e.Class(); c > worst {
			worst = c
		}
	}
	return worst
}

// Counts returns (passed, failed, skipped) entry totals.
func (r *FileResult) Counts() (passed, failed, skipped int) {
	for _, e := range r.Entries {
		switch e.Status {
		case StatusSuccess:
			passed++
		case StatusSkipped:
			skipped++
		default:
			failed++
		}
	}
	return passed, failed, skipped
}
