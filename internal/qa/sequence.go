package qa

import (
	"fmt"
	"slices"
	"strings"

	"reviewbot/internal/domain"
)

// SortOutcome reports whether journals could be ordered by timestamp.
// When Sorted is false, Journals keeps the input order and Reason says why.
type SortOutcome struct {
	Journals []domain.JournalEntry
	Sorted   bool
	Reason   string
}

// SequenceJournals orders journals ascending by their created_on string.
// The input slice is not modified.
func SequenceJournals(journals []domain.JournalEntry) SortOutcome {
	out := slices.Clone(journals)
	for i, j := range out {
		if !j.HasCreatedOn {
			return SortOutcome{
				Journals: out,
				Reason:   fmt.Sprintf("journal %d has no created_on timestamp", i),
			}
		}
	}
	slices.SortStableFunc(out, func(a, b domain.JournalEntry) int {
		return strings.Compare(a.CreatedOn, b.CreatedOn)
	})
	return SortOutcome{Journals: out, Sorted: true}
}
