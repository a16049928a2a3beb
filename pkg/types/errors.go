package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies sandbox-side failures. These never abort the
// pipeline; they are absorbed into a non-passing verdict.
type ErrorKind string

const (
	ErrKindNone                ErrorKind = ""
	ErrKindCloneFailure        ErrorKind = "clone_failure"
	ErrKindPartialApplyFailure ErrorKind = "partial_apply_failure"
	ErrKindNoTestRunner        ErrorKind = "no_test_runner"
	ErrKindTimeout             ErrorKind = "timeout"
)

var (
	// ErrInvalidState is returned when finalize is called on a trace that is
	// not pending, or while another finalize holds the trace.
	ErrInvalidState = errors.New("trace is not in a finalizable state")

	// ErrTraceNotFound is returned by the persistence layer for unknown ids.
	ErrTraceNotFound = errors.New("trace not found")

	// ErrTraceFrozen is returned when events are appended to a trace that
	// has already left the pending state.
	ErrTraceFrozen = errors.New("trace events are frozen")
)

// JudgeServiceError is the one terminal pipeline error: the judging service
// stayed unreachable after its retry, so no complete QAResult exists.
type JudgeServiceError struct {
	Attempts int
	Err      error
}

func (e *JudgeServiceError) Error() string {
	return fmt.Sprintf("judge service unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *JudgeServiceError) Unwrap() error { return e.Err }
