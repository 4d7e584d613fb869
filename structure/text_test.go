package structure

import (
	"strings"
	"testing"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "strips pagination noise",
			input: "Intro\nPage 1 of 10\nBody",
			want:  "Intro\n\nBody",
		},
		{
			name:  "collapses blank line runs",
			input: "a\n\n\n\n\nb",
			want:  "a\n\nb",
		},
		{
			name:  "removes control characters",
			input: "he\x00llo\x07 world",
			want:  "hello world",
		},
		{
			name:  "trims surrounding whitespace",
			input: "  \n text \n  ",
			want:  "text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preprocess(tt.input); got != tt.want {
				t.Errorf("Preprocess(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 100); got != "short" {
		t.Errorf("short text should pass through, got %q", got)
	}
	long := strings.Repeat("x", 200)
	got := Truncate(long, 50)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated text should end with ellipsis, got %q", got[len(got)-10:])
	}
	if len(got) != 53 {
		t.Errorf("truncated length = %d, want 53", len(got))
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{
			name: "bare object",
			raw:  `{"summary": "hi"}`,
			want: `{"summary": "hi"}`,
			ok:   true,
		},
		{
			name: "json fence",
			raw:  "Here you go:\n```json\n{\"language\": \"english\"}\n```\nDone.",
			want: `{"language": "english"}`,
			ok:   true,
		},
		{
			name: "anonymous fence",
			raw:  "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
			ok:   true,
		},
		{
			name: "chat padding around object",
			raw:  `Sure! The result is {"k": "v"} as requested.`,
			want: `{"k": "v"}`,
			ok:   true,
		},
		{
			name: "no json at all",
			raw:  "I could not produce a summary.",
			ok:   false,
		},
		{
			name: "malformed json",
			raw:  `{"unterminated": `,
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.raw)
			if ok != tt.ok {
				t.Fatalf("ExtractJSON ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("ExtractJSON = %q, want %q", got, tt.want)
			}
		})
	}
}
