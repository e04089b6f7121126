package filter

import "testing"

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected bool
	}{
		{name: "bare verdict", response: "RELEVANT", expected: true},
		{name: "verdict in sentence", response: "This tender is RELEVANT.", expected: true},
		{name: "lowercase", response: "relevant because the plant does structural steel", expected: true},
		{name: "bare negative", response: "NOT RELEVANT", expected: false},
		{name: "negative in sentence", response: "This is NOT RELEVANT to the plant", expected: false},
		{name: "mixed case negative", response: "Not Relevant", expected: false},
		{name: "no verdict", response: "I cannot determine this.", expected: false},
		{name: "empty", response: "", expected: false},
		{name: "whitespace padded", response: "  RELEVANT\n", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseVerdict(tt.response); got != tt.expected {
				t.Fatalf("ParseVerdict(%q) = %v, want %v", tt.response, got, tt.expected)
			}
		})
	}
}
