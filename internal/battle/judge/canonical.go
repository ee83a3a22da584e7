// Package judge evaluates a submission against a problem's test cases.
package judge

import "strings"

// Canonicalize normalizes program output for comparison: line endings become
// LF, trailing spaces and tabs are stripped per line, and trailing empty
// lines are dropped. Interior whitespace and blank lines are preserved, so
// formatting that is part of the answer still counts.
func Canonicalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}

// OutputsMatch reports whether actual output answers the expected output
// under canonical comparison.
func OutputsMatch(expected, actual string) bool {
	return Canonicalize(expected) == Canonicalize(actual)
}
