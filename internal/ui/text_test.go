package ui

import "testing"

func TestShortID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"abcdefgh", "abcdefgh"},
		{"abcdefghi", "abcdefgh"},
		{"3f2b9c1e-8d4a-4c6b-9e0f-123456789abc", "3f2b9c1e"},
		{"日本語の長いタスク識別子", "日本語の長いタス"},
	}

	for _, test := range tests {
		result := ShortID(test.input)
		if result != test.expected {
			t.Errorf("ShortID(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestTruncateWithEllipsis(t *testing.T) {
	tests := []struct {
		input    string
		max      int
		expected string
	}{
		{"Song", 10, "Song"},
		{"Song Title", 4, "Song…"},
		{"Ñandú remix", 5, "Ñandú…"},
		{"anything", 0, ""},
	}

	for _, test := range tests {
		result := TruncateWithEllipsis(test.input, test.max)
		if result != test.expected {
			t.Errorf("TruncateWithEllipsis(%q, %d) = %q, expected %q", test.input, test.max, result, test.expected)
		}
	}
}
