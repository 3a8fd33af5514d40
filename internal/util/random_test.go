package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		hexLength  int
		wantPrefix string
		wantLength int
	}{
		{
			name:       "reflection ID format",
			prefix:     "refl_",
			hexLength:  32,
			wantPrefix: "refl_",
			wantLength: 37,
		},
		{
			name:       "job ID format",
			prefix:     "job_",
			hexLength:  32,
			wantPrefix: "job_",
			wantLength: 36,
		},
		{
			name:       "no prefix",
			prefix:     "",
			hexLength:  16,
			wantPrefix: "",
			wantLength: 16,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomID(tt.prefix, tt.hexLength)
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("Expected prefix %q, got %q", tt.wantPrefix, got)
			}
			if len(got) != tt.wantLength {
				t.Errorf("Expected length %d, got %d (%q)", tt.wantLength, len(got), got)
			}
			for _, c := range got[len(tt.prefix):] {
				if !strings.ContainsRune("0123456789abcdef", c) {
					t.Errorf("Non-hex character %q in %q", c, got)
				}
			}
		})
	}
}

func TestGenerateRandomHexUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRandomHex(32)
		if seen[id] {
			t.Fatalf("Duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestGenerateRandomHexZeroLength(t *testing.T) {
	if got := GenerateRandomHex(0); got != "" {
		t.Errorf("Expected empty string for zero length, got %q", got)
	}
	if got := GenerateRandomHex(-3); got != "" {
		t.Errorf("Expected empty string for negative length, got %q", got)
	}
}

func TestGenerateReflectionID(t *testing.T) {
	id := GenerateReflectionID()
	if !strings.HasPrefix(id, "refl_") {
		t.Errorf("Expected refl_ prefix, got %q", id)
	}
	if len(id) != 37 {
		t.Errorf("Expected 37 characters, got %d", len(id))
	}
}
