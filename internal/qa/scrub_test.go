package qa

import (
	"strings"
	"testing"
)

func TestScrub_DropsNoiseLines(t *testing.T) {
	p := DefaultPolicy()
	in := strings.Join([]string{
		"The job failed after the upgrade.",
		"2024-05-01 12:00:00 worker started",
		"  12:00:01 retrying",
		"INFO connected",
		"ERROR timeout",
		"DEBUG x=1",
		"TRACE enter",
		`{"level":"info"}`,
		"  [1, 2, 3]  ",
		strings.Repeat("x", 201),
		"Restarting the service fixed it.",
	}, "\n")

	got := Scrub(in, p)
	want := "The job failed after the upgrade.\nRestarting the service fixed it."
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestScrub_KeepsBorderlineLines(t *testing.T) {
	p := DefaultPolicy()
	tests := []string{
		strings.Repeat("y", 200),
		strings.Repeat("あ", 200),
		"{ not closed",
		"[mismatched}",
		"Information only",
		"the log says ERROR",
	}
	for _, line := range tests {
		if got := Scrub(line, p); got != line {
			t.Fatalf("expected line %q to survive, got %q", line, got)
		}
	}
}

func TestScrub_AllDroppedYieldsSentinel(t *testing.T) {
	p := DefaultPolicy()
	got := Scrub("INFO a\nERROR b\n{}", p)
	if got != "[log omitted]" {
		t.Fatalf("expected sentinel, got %q", got)
	}

	p.OmittedSentinel = "(omitted)"
	if got := Scrub("DEBUG only", p); got != "(omitted)" {
		t.Fatalf("expected custom sentinel, got %q", got)
	}
}

func TestScrub_EmptyStaysEmpty(t *testing.T) {
	if got := Scrub("", DefaultPolicy()); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func TestScrub_MaxLineCharsFromPolicy(t *testing.T) {
	p := DefaultPolicy()
	p.MaxLineChars = 5
	if got := Scrub("short\ntoo long", p); got != "short" {
		t.Fatalf("expected long line dropped, got %q", got)
	}
}
