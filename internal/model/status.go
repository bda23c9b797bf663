package model

import "strings"

// OnShelfStatus is the canonical holding status meaning a copy is expected
// to be physically present on the shelf.
const OnShelfStatus = "on shelf"

// StatusSet answers whether a holding status counts as present on the shelf.
// Comparison is case-insensitive after whitespace normalization, so scraped
// table values like "On shelf" or "on  shelf\n" classify the same way.
type StatusSet struct {
	onShelf map[string]bool
}

// NewStatusSet compiles the configured on-shelf statuses. The canonical
// "on shelf" value is always included; cfg may be nil.
func NewStatusSet(cfg *StatusConfig) StatusSet {
	set := StatusSet{
		onShelf: map[string]bool{OnShelfStatus: true},
	}
	if cfg != nil {
		for _, status := range cfg.OnShelf {
			if normalized := NormalizeStatus(status); normalized != "" {
				set.onShelf[normalized] = true
			}
		}
	}
	return set
}

// OnShelf reports whether status means the copy is on the shelf. Every other
// value ("on loan", "lost", "in processing", ...) is a shelf discrepancy.
func (s StatusSet) OnShelf(status string) bool {
	return s.onShelf[NormalizeStatus(status)]
}

// NormalizeStatus lowercases a status and collapses runs of whitespace.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.Join(strings.Fields(status), " "))
}
