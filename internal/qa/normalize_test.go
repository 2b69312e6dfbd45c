package qa

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"reviewbot/internal/domain"
)

func collect(payload any) []map[string]any {
	return slices.Collect(Records(payload))
}

func TestRecords_Shapes(t *testing.T) {
	rec := map[string]any{"issue": map[string]any{"id": "1"}}

	tests := []struct {
		name    string
		payload any
		want    int
	}{
		{"bare record", rec, 1},
		{"wrapped record", map[string]any{"inputs": rec}, 1},
		{"wrapped sequence", map[string]any{"inputs": []any{rec, "junk", 3, rec}}, 2},
		{"sequence", []any{rec, nil, rec}, 2},
		{"typed sequence", []map[string]any{rec, nil}, 1},
		{"wrapped nil", map[string]any{"inputs": nil}, 0},
		{"string", "hello", 0},
		{"number", 42.0, 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(collect(tt.payload)); got != tt.want {
				t.Fatalf("expected %d records, got %d", tt.want, got)
			}
		})
	}
}

func TestRecords_StopsEarly(t *testing.T) {
	rec := map[string]any{"issue": map[string]any{}}
	n := 0
	for range Records([]any{rec, rec, rec}) {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("expected iteration to stop after one record, got %d", n)
	}
}

func TestDecodeTickets_ParsesFields(t *testing.T) {
	raw := []byte(`{"inputs": [{"issue": {
		"id": 1234,
		"subject": "Login fails",
		"description": "Question: why?",
		"created_on": "2024-01-01T00:00:00Z",
		"updated_on": "2024-01-03T00:00:00Z",
		"custom_fields": [{"name": "caseid", "value": "1234567890"}, {"name": "tags", "value": ["a", "b"]}, "junk"],
		"journals": [
			{"notes": "Answer\nok", "created_on": "2024-01-02T00:00:00Z"},
			{"notes": null},
			{"notes": "x", "created_on": 17},
			"junk"
		]
	}}]}`)

	got := DecodeTickets(raw)
	want := []domain.TicketRecord{{
		ID:          "1234",
		Subject:     "Login fails",
		Description: "Question: why?",
		CreatedOn:   "2024-01-01T00:00:00Z",
		UpdatedOn:   "2024-01-03T00:00:00Z",
		CustomFields: []domain.CustomField{
			{Name: "caseid", Value: "1234567890"},
			{Name: "tags", Value: "a,b"},
		},
		Journals: []domain.JournalEntry{
			{Notes: "Answer\nok", CreatedOn: "2024-01-02T00:00:00Z", HasCreatedOn: true},
			{},
			{Notes: "x"},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected tickets (-want +got):\n%s", diff)
	}
}

func TestDecodeTickets_InvalidJSON(t *testing.T) {
	if got := DecodeTickets([]byte("{not json")); got != nil {
		t.Fatalf("expected no tickets, got %+v", got)
	}
}

func TestParseTicket_MissingIssue(t *testing.T) {
	got := ParseTicket(map[string]any{"issue": "nope"})
	if diff := cmp.Diff(domain.TicketRecord{}, got); diff != "" {
		t.Fatalf("expected empty ticket (-want +got):\n%s", diff)
	}
}
