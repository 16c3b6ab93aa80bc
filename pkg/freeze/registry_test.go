package freeze

import (
	"strings"
	"testing"
)

func TestRegistry_Announce(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		id    string
		added bool
	}{
		{"s1", true},
		{"s2", true},
		{"s1", false},
		{"", false},
		{"s3", true},
	}
	for _, tt := range tests {
		if got := r.Announce(tt.id); got != tt.added {
			t.Errorf("Announce(%q) = %v, want %v", tt.id, got, tt.added)
		}
	}

	if got := strings.Join(r.IDs(), ","); got != "s1,s2,s3" {
		t.Errorf("IDs = %s, want s1,s2,s3", got)
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d, want 3", r.Len())
	}
}

func TestRegistry_SeedDeduplicates(t *testing.T) {
	r := NewRegistry("b", "a", "b")
	if got := strings.Join(r.IDs(), ","); got != "b,a" {
		t.Errorf("IDs = %s, want b,a", got)
	}
}

func TestRegistry_IDsIsACopy(t *testing.T) {
	r := NewRegistry("a")
	ids := r.IDs()
	ids[0] = "mutated"
	if r.IDs()[0] != "a" {
		t.Error("IDs must not expose internal state")
	}
}
