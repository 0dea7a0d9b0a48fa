package quota

import (
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int64
	}{
		{"empty", "", 0},
		{"whitespace only", "  \n\t ", 0},
		{"single char rounds up to one", "a", 1},
		{"three chars round up to one", "abc", 1},
		{"four chars", "abcd", 1},
		{"eight chars", "abcdefgh", 2},
		{"hundred chars", strings.Repeat("x", 100), 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestNewRunID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRunID()
		if id == "" {
			t.Fatal("Expected non-empty run ID")
		}
		if seen[id] {
			t.Fatalf("Duplicate run ID %q", id)
		}
		seen[id] = true
	}
}
