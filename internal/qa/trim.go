package qa

import (
	"slices"
	"unicode/utf8"
)

// TrimStats describes what Trim removed.
type TrimStats struct {
	Mode      TrimMode `json:"mode"`
	Kept      int      `json:"kept"`
	Dropped   int      `json:"dropped"`
	Truncated bool     `json:"truncated"`
	Chars     int      `json:"chars"`
}

// Trim bounds entries to the policy budget, dropping the oldest first.
// In chars mode the entry straddling the budget keeps its head, cut to the
// exact remaining room. Chronological order is preserved.
func Trim(entries []Entry, p Policy) ([]Entry, TrimStats) {
	p = p.withDefaults()
	stats := TrimStats{Mode: p.TrimMode}

	var kept []Entry
	if p.TrimMode == TrimByCount {
		start := max(0, len(entries)-p.MaxEntries)
		kept = slices.Clone(entries[start:])
	} else {
		remaining := p.MaxChars
		for i := len(entries) - 1; i >= 0 && remaining > 0; i-- {
			e := entries[i]
			n := utf8.RuneCountInString(e.Text)
			if n > remaining {
				e.Text = string([]rune(e.Text)[:remaining])
				stats.Truncated = true
				kept = append(kept, e)
				break
			}
			kept = append(kept, e)
			remaining -= n
		}
		slices.Reverse(kept)
	}
	if kept == nil {
		kept = []Entry{}
	}

	stats.Kept = len(kept)
	stats.Dropped = len(entries) - len(kept)
	for _, e := range kept {
		stats.Chars += utf8.RuneCountInString(e.Text)
	}
	return kept, stats
}
