package model

import "testing"

func TestStatusSet_OnShelf(t *testing.T) {
	set := NewStatusSet(nil)

	tests := []struct {
		status  string
		onShelf bool
	}{
		{"on shelf", true},
		{"On Shelf", true},
		{"  on   shelf \n", true},
		{"on loan", false},
		{"lost", false},
		{"in processing", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := set.OnShelf(tt.status); got != tt.onShelf {
				t.Errorf("OnShelf(%q) = %v, want %v", tt.status, got, tt.onShelf)
			}
		})
	}
}

func TestStatusSet_ConfiguredSynonyms(t *testing.T) {
	set := NewStatusSet(&StatusConfig{OnShelf: []string{"Available", "  RESHELVING "}})

	if !set.OnShelf("available") {
		t.Error("expected configured synonym to count as on shelf")
	}
	if !set.OnShelf("reshelving") {
		t.Error("expected normalized synonym to count as on shelf")
	}
	// The canonical value stays in even when the config lists others.
	if !set.OnShelf("on shelf") {
		t.Error("expected canonical value to remain on shelf")
	}
	if set.OnShelf("on loan") {
		t.Error("expected unlisted status to stay a discrepancy")
	}
}

func TestNormalizeStatus(t *testing.T) {
	if got := NormalizeStatus(" On \t Shelf\n"); got != "on shelf" {
		t.Errorf("NormalizeStatus = %q, want %q", got, "on shelf")
	}
	if got := NormalizeStatus(""); got != "" {
		t.Errorf("NormalizeStatus(\"\") = %q, want empty", got)
	}
}
