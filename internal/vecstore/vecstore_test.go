package vecstore

import (
	"testing"
	"unicode/utf8"
)

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid passthrough", "fièvre légère", "fièvre légère"},
		{"ascii", "plain text", "plain text"},
		{"invalid bytes dropped", "abc\xff\xfedef", "abcdef"},
		{"lone continuation", "x\x80y", "xy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeUTF8(tt.in)
			if got != tt.want {
				t.Fatalf("sanitizeUTF8(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("output still invalid: %q", got)
			}
		})
	}
}

func TestSanitizeUTF8KeepsReplacementRune(t *testing.T) {
	// A literal U+FFFD in the input is valid UTF-8 and must survive.
	in := "a�b"
	if got := sanitizeUTF8(in); got != in {
		t.Fatalf("sanitizeUTF8(%q) = %q", in, got)
	}
}
