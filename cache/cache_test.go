package cache

import (
	"math"
	"testing"
)

func TestHashQuery(t *testing.T) {
	h := HashQuery("What is the revenue?")
	if len(h) != 16 {
		t.Fatalf("hash length = %d, want 16", len(h))
	}
	// Normalization: case and surrounding whitespace must not matter.
	if HashQuery("  what is the revenue?  ") != h {
		t.Error("normalized variants should hash identically")
	}
	if HashQuery("a different query") == h {
		t.Error("different queries should not collide")
	}
}

func TestResponseKey(t *testing.T) {
	if got := responseKey("abc123", ""); got != "rag:response:abc123" {
		t.Errorf("unscoped key = %q", got)
	}
	if got := responseKey("abc123", "report.pdf"); got != "rag:response:abc123:report.pdf" {
		t.Errorf("scoped key = %q", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"length mismatch", []float64{1}, []float64{1, 2}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}
