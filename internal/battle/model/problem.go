package model

// TestCase is one input/expected-output pair of a problem.
// Both sides are opaque strings; comparison rules live in the judge.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}

// Problem is the judge-facing view of a problem: an identifier and its
// ordered test cases. Test cases are evaluated in stored order.
type Problem struct {
	ID        int64      `json:"problemId"`
	Title     string     `json:"title"`
	TestCases []TestCase `json:"testCases"`
}
