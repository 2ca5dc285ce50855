package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestParseModelID(t *testing.T) {
	tests := []struct {
		input    string
		expected ModelID
		hasError bool
	}{
		{"tl-anova", ModelID("tl-anova"), false},
		{"  padded  ", ModelID("padded"), false},
		{"", "", true},
		{"   ", "", true},
	}

	for _, tt := range tests {
		got, err := ParseModelID(tt.input)
		if tt.hasError {
			if err == nil {
				t.Errorf("ParseModelID(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseModelID(%q) unexpected error: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("ParseModelID(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestHashFileMatchesNewHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pop.csv")
	content := []byte("corral,YP.start,YP.end\nA,20,18\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	h, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if h != NewHash(content) {
		t.Errorf("file hash %s differs from in-memory hash %s", h, NewHash(content))
	}
	if len(h.Short()) != 12 {
		t.Errorf("Short() length = %d", len(h.Short()))
	}
}

func TestErrorClassification(t *testing.T) {
	err := NewRankDeficientError("corral collinear with treatment")
	if !IsRankDeficient(err) || !IsModelFitError(err) {
		t.Errorf("rank-deficient error not classified as model fit error: %v", err)
	}
	if IsLoadError(err) {
		t.Error("rank-deficient error classified as load error")
	}

	loadErr := NewMalformedValueError("bio.csv", 3, "TL", "abc")
	if !IsLoadError(loadErr) || !errors.Is(loadErr, ErrMalformedValue) {
		t.Errorf("malformed value error not classified as load error: %v", loadErr)
	}
}
