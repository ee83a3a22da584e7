// Package sandbox executes untrusted submitted code in an isolated,
// resource-bounded process and reports the captured output.
package sandbox

import (
	"context"
	"time"
)

// FailReason classifies why an execution did not produce usable output.
type FailReason string

const (
	// ReasonCompile covers syntax/compile rejections of the submitted code.
	ReasonCompile FailReason = "compile_error"
	// ReasonRuntime covers nonzero exits and crashes of the submitted code.
	ReasonRuntime FailReason = "runtime_error"
	// ReasonTimeout means the wall-clock limit was hit and the process killed.
	ReasonTimeout FailReason = "timeout"
	// ReasonOutputTooLarge means stdout exceeded the output cap.
	ReasonOutputTooLarge FailReason = "output_too_large"
	// ReasonInternal means the sandbox itself malfunctioned. This is the only
	// reason that should be treated as retryable; the others are attributable
	// to the submitted program.
	ReasonInternal FailReason = "internal_error"
)

// Request contains one program and one input. It is single use.
type Request struct {
	Code     string
	Input    string
	Language string
}

// Limits are the mandatory execution bounds for one request.
type Limits struct {
	WallTime    time.Duration
	OutputBytes int64
}

// Result is the outcome of one execution. Exactly one of Ok/Fail semantics
// applies: when Reason is empty the run succeeded and Stdout/Stderr hold the
// captured streams; otherwise Diagnostic explains the failure.
type Result struct {
	Stdout     string
	Stderr     string
	Truncated  bool
	TimeMs     int64
	ExitCode   int
	Reason     FailReason
	Diagnostic string
}

// Ok reports whether the execution produced usable output.
func (r Result) Ok() bool {
	return r.Reason == ""
}

// Executor runs one request inside a fresh, fully torn down execution
// context. Implementations must not let any state survive between calls.
type Executor interface {
	Execute(ctx context.Context, req Request, limits Limits) (Result, error)
}
