package qa

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"reviewbot/internal/domain"
)

func TestSequenceJournals_SortsStable(t *testing.T) {
	in := []domain.JournalEntry{
		{Notes: "c", CreatedOn: "2024-01-03", HasCreatedOn: true},
		{Notes: "a", CreatedOn: "2024-01-01", HasCreatedOn: true},
		{Notes: "b1", CreatedOn: "2024-01-02", HasCreatedOn: true},
		{Notes: "b2", CreatedOn: "2024-01-02", HasCreatedOn: true},
	}
	out := SequenceJournals(in)
	if !out.Sorted || out.Reason != "" {
		t.Fatalf("expected sorted outcome, got %+v", out)
	}
	var notes []string
	for _, j := range out.Journals {
		notes = append(notes, j.Notes)
	}
	if diff := cmp.Diff([]string{"a", "b1", "b2", "c"}, notes); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if in[0].Notes != "c" {
		t.Fatalf("input slice was mutated")
	}
}

func TestSequenceJournals_FallsBackOnMissingTimestamp(t *testing.T) {
	in := []domain.JournalEntry{
		{Notes: "second", CreatedOn: "2024-01-02", HasCreatedOn: true},
		{Notes: "no time"},
		{Notes: "first", CreatedOn: "2024-01-01", HasCreatedOn: true},
	}
	out := SequenceJournals(in)
	if out.Sorted {
		t.Fatalf("expected sort to fail")
	}
	if out.Reason == "" {
		t.Fatalf("expected a fallback reason")
	}
	if diff := cmp.Diff(in, out.Journals); diff != "" {
		t.Fatalf("expected original order (-want +got):\n%s", diff)
	}
}
