package utils

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "etcpasswd"},
		{"  spaced name.docx  ", "spaced name.docx"},
		{"we!rd@ch#ars.txt", "werdchars.txt"},
		{strings.Repeat("a", 300) + ".pdf", strings.Repeat("a", 255)},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidSessionID(t *testing.T) {
	valid := []string{"default", "user-123", "a.b_c"}
	for _, s := range valid {
		if !ValidSessionID(s) {
			t.Errorf("%q should be valid", s)
		}
	}
	invalid := []string{"", "has spaces", "semi;colon", strings.Repeat("x", 200)}
	for _, s := range invalid {
		if ValidSessionID(s) {
			t.Errorf("%q should be invalid", s)
		}
	}
}
