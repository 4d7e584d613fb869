package vectorstore

import (
	"errors"
	"strings"
	"testing"
)

func TestCompileFilter(t *testing.T) {
	if got, _ := compileFilter(nil); got != "{}" {
		t.Errorf("nil filter = %q, want {}", got)
	}
	got, err := compileFilter(Filter{"session_id": "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"session_id":"s1"}` {
		t.Errorf("filter json = %q", got)
	}
}

func TestStaleHandle(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"dropped table", errors.New(`relation "rag_chunks_documents" does not exist`), true},
		{"cached plan", errors.New("cached plan must not change result type"), true},
		{"stale handle", errors.New("stale collection handle"), true},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := staleHandle(tt.err); got != tt.want {
				t.Errorf("staleHandle(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCollectionTableNames(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"documents", "rag_chunks_documents"},
		{"My-Project", "rag_chunks_my_project"},
		{"a b;drop", "rag_chunks_a_b_drop"},
	}
	for _, tt := range tests {
		table := "rag_chunks_" + tableNameSanitizer.ReplaceAllString(strings.ToLower(tt.name), "_")
		if table != tt.want {
			t.Errorf("table for %q = %q, want %q", tt.name, table, tt.want)
		}
	}
}

func TestTruncateForEmbedding(t *testing.T) {
	c := &Collection{store: &Store{maxChars: 10}}
	if got := c.truncateForEmbedding("short"); got != "short" {
		t.Errorf("short text changed: %q", got)
	}
	got := c.truncateForEmbedding("this is definitely too long")
	if got != "this is de..." {
		t.Errorf("truncated = %q", got)
	}
}
