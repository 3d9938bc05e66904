package utils

import "testing"

func TestHashString(t *testing.T) {
	if HashString("a") != HashString("a") {
		t.Error("Expected stable hash")
	}
	if HashString("a") == HashString("b") {
		t.Error("Expected different inputs to hash differently")
	}
	if len(HashString("a")) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(HashString("a")))
	}
}

func TestShortHash(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		expected int
	}{
		{"twelve", 12, 12},
		{"zero means full", 0, 64},
		{"too long means full", 100, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(ShortHash("<html></html>", tt.n)); got != tt.expected {
				t.Errorf("Expected length %d, got %d", tt.expected, got)
			}
		})
	}
}
