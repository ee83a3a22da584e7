package judge

import "testing"

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "42", "42"},
		{"trailing newline", "42\n", "42"},
		{"crlf", "a\r\nb\r\n", "a\nb"},
		{"trailing spaces per line", "a  \nb\t\n", "a\nb"},
		{"trailing blank lines", "a\n\n\n", "a"},
		{"interior blank line kept", "a\n\nb", "a\n\nb"},
		{"leading spaces kept", "  a", "  a"},
		{"empty", "", ""},
		{"only whitespace", " \t\n\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonicalize(tt.in); got != tt.want {
				t.Fatalf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestOutputsMatch(t *testing.T) {
	if !OutputsMatch("1 2 3\n", "1 2 3") {
		t.Fatal("trailing newline should not break a match")
	}
	if !OutputsMatch("a\nb", "a  \r\nb\r\n") {
		t.Fatal("crlf and trailing spaces should not break a match")
	}
	if OutputsMatch("1 2 3", "1  2 3") {
		t.Fatal("interior whitespace differences must not match")
	}
	if OutputsMatch("a\nb", "a\n\nb") {
		t.Fatal("interior blank lines must not match")
	}
}
