package chat

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"documind/database"
	"documind/vectorstore"
)

func testService(t *testing.T) *Service {
	t.Helper()
	return New(nil, nil, nil, nil, "documents", 10, 4, zap.NewNop())
}

func TestNormalize(t *testing.T) {
	svc := testService(t)
	tests := []struct {
		name        string
		in          Request
		wantSession string
		wantK       int
	}{
		{"defaults", Request{Query: "q"}, DefaultSession, 4},
		{"blank session", Request{Query: "q", SessionID: "   "}, DefaultSession, 4},
		{"explicit session", Request{Query: "q", SessionID: "s1", K: 8}, "s1", 8},
		{"k clamped", Request{Query: "q", K: 500}, DefaultSession, 10},
		{"negative k", Request{Query: "q", K: -3}, DefaultSession, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc.normalize(&tt.in)
			if tt.in.SessionID != tt.wantSession {
				t.Errorf("session = %q, want %q", tt.in.SessionID, tt.wantSession)
			}
			if tt.in.K != tt.wantK {
				t.Errorf("k = %d, want %d", tt.in.K, tt.wantK)
			}
		})
	}
}

func TestUseHistoryDefault(t *testing.T) {
	var req Request
	if !req.useHistory() {
		t.Error("omitted use_history must default to true")
	}
	off := false
	req.UseHistory = &off
	if req.useHistory() {
		t.Error("use_history=false must disable history")
	}
}

func TestRetrievalFilter(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want vectorstore.Filter
	}{
		{"default session searches everything", Request{SessionID: DefaultSession}, nil},
		{"default session pinned to document",
			Request{SessionID: DefaultSession, SourceID: "doc__ab12cd34"},
			vectorstore.Filter{"source_id": "doc__ab12cd34"}},
		{"named session scopes to its chunks",
			Request{SessionID: "s1"},
			vectorstore.Filter{"session_id": "s1"}},
		{"named session pinned to document",
			Request{SessionID: "s1", SourceID: "doc__ab12cd34"},
			vectorstore.Filter{"session_id": "s1", "source_id": "doc__ab12cd34"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := retrievalFilter(&tt.req)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("filter = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFailedResult(t *testing.T) {
	req := Request{SessionID: "s1"}
	ret := &retrieval{
		contexts: []string{"chunk one"},
		sources:  []string{"report (ID: report__ab12cd34)"},
	}

	res := failedResult(req, ret, time.Now(), errors.New("model unavailable"))

	if !res.Error {
		t.Error("error flag must be set")
	}
	if res.Answer != "Error: model unavailable" {
		t.Errorf("answer = %q", res.Answer)
	}
	if !res.ContextFound {
		t.Error("retrieval outcome must survive a generation failure")
	}
	if len(res.Sources) != 1 || res.SessionID != "s1" {
		t.Errorf("result = %+v", res)
	}

	empty := failedResult(req, &retrieval{}, time.Now(), errors.New("x"))
	if empty.ContextFound {
		t.Error("no contexts means context_found=false")
	}
}

func TestBuildPromptWithContext(t *testing.T) {
	prompt := buildPrompt("What changed?", &retrieval{
		contexts: []string{"chunk one", "chunk two"},
		history: []database.ChatMessage{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi there"},
		},
	})

	for _, want := range []string{
		"CONVERSATION HISTORY:",
		"User: hello",
		"Assistant: hi there",
		"DOCUMENT CONTEXT:",
		"chunk one\n---\nchunk two",
		"USER QUESTION:\nWhat changed?",
		"ASSISTANT RESPONSE:",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	// Sections must appear in order.
	hist := strings.Index(prompt, "CONVERSATION HISTORY:")
	ctx := strings.Index(prompt, "DOCUMENT CONTEXT:")
	q := strings.Index(prompt, "USER QUESTION:")
	if !(hist < ctx && ctx < q) {
		t.Errorf("prompt sections out of order: %d %d %d", hist, ctx, q)
	}
}

func TestBuildPromptWithoutContext(t *testing.T) {
	prompt := buildPrompt("anything?", &retrieval{})
	if !strings.Contains(prompt, "NOTE: No relevant context was found in the knowledgebase.") {
		t.Errorf("missing no-context note:\n%s", prompt)
	}
	if strings.Contains(prompt, "DOCUMENT CONTEXT:") {
		t.Error("empty retrieval should not emit a context section")
	}
	if strings.Contains(prompt, "CONVERSATION HISTORY:") {
		t.Error("empty history should not emit a history section")
	}
}
