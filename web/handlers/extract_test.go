package handlers

import (
	"reflect"
	"testing"
)

func TestCollectLinks(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{"repeated values", []string{"https://a.com", "https://b.com"}, []string{"https://a.com", "https://b.com"}},
		{"comma separated", []string{"https://a.com, https://b.com"}, []string{"https://a.com", "https://b.com"}},
		{"blank entries dropped", []string{" , https://a.com ,, "}, []string{"https://a.com"}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := collectLinks(tt.values); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("collectLinks(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}
