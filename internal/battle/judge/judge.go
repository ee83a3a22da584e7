package judge

import (
	"context"
	"fmt"

	"codeverse/internal/battle/model"
	"codeverse/internal/battle/sandbox"
	"codeverse/pkg/errors"
)

// CaseResult is the judged outcome of one test case.
type CaseResult struct {
	Input    string
	Expected string
	Actual   string
	Passed   bool
	Reason   sandbox.FailReason
	TimeMs   int64
}

// Verdict is the judged outcome of one submission. Evaluation stops at the
// first failing case, so Results holds every passed case plus at most one
// failed one.
type Verdict struct {
	Passed  bool
	Results []CaseResult
}

// Judge runs a submission against a problem's test cases through a sandbox
// executor.
type Judge struct {
	executor sandbox.Executor
	limits   sandbox.Limits
}

// New creates a judge. The limits apply per test case.
func New(executor sandbox.Executor, limits sandbox.Limits) (*Judge, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if limits.WallTime <= 0 || limits.OutputBytes <= 0 {
		return nil, fmt.Errorf("per-case limits are required")
	}
	return &Judge{executor: executor, limits: limits}, nil
}

// Evaluate judges code against the problem's test cases in stored order,
// stopping at the first failure. A returned error means the judging system
// itself failed and the submission should not be scored either way.
func (j *Judge) Evaluate(ctx context.Context, problem *model.Problem, code, language string) (Verdict, error) {
	if problem == nil || len(problem.TestCases) == 0 {
		return Verdict{}, errors.Newf(errors.JudgeSystemError, "problem has no test cases")
	}

	verdict := Verdict{Results: make([]CaseResult, 0, len(problem.TestCases))}
	for _, tc := range problem.TestCases {
		res, err := j.executor.Execute(ctx, sandbox.Request{
			Code:     code,
			Input:    tc.Input,
			Language: language,
		}, j.limits)
		if err != nil {
			return Verdict{}, errors.Wrap(err, errors.SandboxError)
		}
		if res.Reason == sandbox.ReasonInternal {
			return Verdict{}, errors.Newf(errors.SandboxError, "%s", res.Diagnostic)
		}

		caseResult := CaseResult{
			Input:    tc.Input,
			Expected: tc.ExpectedOutput,
			TimeMs:   res.TimeMs,
		}
		if !res.Ok() {
			caseResult.Actual = failureActual(res)
			caseResult.Reason = res.Reason
			verdict.Results = append(verdict.Results, caseResult)
			return verdict, nil
		}

		caseResult.Actual = res.Stdout
		caseResult.Passed = OutputsMatch(tc.ExpectedOutput, res.Stdout)
		verdict.Results = append(verdict.Results, caseResult)
		if !caseResult.Passed {
			return verdict, nil
		}
	}
	verdict.Passed = true
	return verdict, nil
}

// failureActual renders a sandbox failure as the "actual" side of a case
// result so clients can show why the case failed.
func failureActual(res sandbox.Result) string {
	if res.Diagnostic != "" {
		return fmt.Sprintf("[%s] %s", res.Reason, res.Diagnostic)
	}
	return fmt.Sprintf("[%s]", res.Reason)
}
