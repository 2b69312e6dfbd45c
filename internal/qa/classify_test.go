package qa

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"reviewbot/internal/domain"
)

var sep41 = strings.Repeat("-", 41)

func journal(notes, created string) domain.JournalEntry {
	return domain.JournalEntry{Notes: notes, CreatedOn: created, HasCreatedOn: true}
}

func withCaseID(id string) []domain.CustomField {
	return []domain.CustomField{{Name: "caseid", Value: id}}
}

func TestClassify_Scenarios(t *testing.T) {
	tests := []struct {
		name         string
		ticket       domain.TicketRecord
		wantStatus   Status
		wantAnswer   string
		wantQuestion string
	}{
		{
			name: "ok",
			ticket: domain.TicketRecord{
				ID:           "1",
				Description:  "Question: why did step 3 fail?",
				CreatedOn:    "2024-01-01T00:00:00Z",
				CustomFields: withCaseID("1234567890"),
				Journals: []domain.JournalEntry{
					journal("Answer\n"+sep41+"\n1234567890 fixed via retry", "2024-01-02T00:00:00Z"),
				},
			},
			wantStatus:   StatusOK,
			wantAnswer:   "1234567890 fixed via retry",
			wantQuestion: "why did step 3 fail?",
		},
		{
			name:       "no journals and no markers",
			ticket:     domain.TicketRecord{ID: "2", Description: "plain request"},
			wantStatus: StatusNoAnswerFound,
		},
		{
			name: "question after last answer",
			ticket: domain.TicketRecord{
				ID:           "3",
				CustomFields: withCaseID("1234567890"),
				Journals: []domain.JournalEntry{
					journal("Answer\n"+sep41+"\n1234567890 done", "2024-01-02"),
					journal("Question\n"+sep41+"\nany update?", "2024-01-03"),
				},
			},
			wantStatus: StatusUnansweredNewQuestion,
		},
		{
			name: "empty caseid field",
			ticket: domain.TicketRecord{
				ID:           "4",
				Description:  "Question: x",
				CustomFields: []domain.CustomField{{Name: "caseid", Value: ""}, {Name: "other", Value: "v"}},
				Journals:     []domain.JournalEntry{journal("Answer: 1234567890 ok", "2024-01-02")},
			},
			wantStatus: StatusCaseIDFieldMissing,
		},
		{
			name: "caseid mismatch",
			ticket: domain.TicketRecord{
				ID:           "5",
				Description:  "Question: x",
				CustomFields: withCaseID("1234567890"),
				Journals:     []domain.JournalEntry{journal("Answer\n"+sep41+"\nRe: 9999999999\nresolved", "2024-01-02")},
			},
			wantStatus: StatusCaseIDMismatch,
		},
		{
			name: "caseid missing keeps the pair",
			ticket: domain.TicketRecord{
				ID:           "6",
				Description:  "Question: what now?",
				CustomFields: withCaseID("1234567890"),
				Journals:     []domain.JournalEntry{journal("Answer\n"+sep41+"\nline1\nline2\nline3\n1234567890", "2024-01-02")},
			},
			wantStatus:   StatusCaseIDMissing,
			wantAnswer:   "line1\nline2\nline3\n1234567890",
			wantQuestion: "what now?",
		},
		{
			name: "no question anywhere",
			ticket: domain.TicketRecord{
				ID:           "7",
				CustomFields: withCaseID("1234567890"),
				Journals:     []domain.JournalEntry{journal("Answer: 1234567890 done", "2024-01-02")},
			},
			wantStatus: StatusIncomplete,
			wantAnswer: "1234567890 done",
		},
		{
			name: "nearest prior journal question wins over description",
			ticket: domain.TicketRecord{
				ID:           "8",
				Description:  "Question: original",
				CustomFields: withCaseID("1234567890"),
				Journals: []domain.JournalEntry{
					journal("Question: first follow-up", "2024-01-02"),
					journal("internal note", "2024-01-03"),
					journal("Question: second follow-up", "2024-01-04"),
					journal("Answer: 1234567890 here you go", "2024-01-05"),
				},
			},
			wantStatus:   StatusOK,
			wantAnswer:   "1234567890 here you go",
			wantQuestion: "second follow-up",
		},
		{
			name: "later answer resolves an intermediate question",
			ticket: domain.TicketRecord{
				ID:           "9",
				Description:  "Question: start",
				CustomFields: withCaseID("1234567890"),
				Journals: []domain.JournalEntry{
					journal("Answer: 1234567890 first", "2024-01-02"),
					journal("Question: more?", "2024-01-03"),
					journal("Answer: 1234567890 second", "2024-01-04"),
				},
			},
			wantStatus:   StatusOK,
			wantAnswer:   "1234567890 second",
			wantQuestion: "more?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, trace := Classify(tt.ticket, DefaultPolicy())
			if got.Status != tt.wantStatus {
				t.Fatalf("expected status %s, got %s (trace %+v)", tt.wantStatus, got.Status, trace)
			}
			if got.LastAnswer != tt.wantAnswer {
				t.Fatalf("expected last answer %q, got %q", tt.wantAnswer, got.LastAnswer)
			}
			if got.PreviousQuestion != tt.wantQuestion {
				t.Fatalf("expected previous question %q, got %q", tt.wantQuestion, got.PreviousQuestion)
			}
			if trace.Rule != got.Status {
				t.Fatalf("trace rule %s does not match status %s", trace.Rule, got.Status)
			}
		})
	}
}

func TestClassify_SortsJournalsBeforeRules(t *testing.T) {
	ticket := domain.TicketRecord{
		Description:  "Question: q",
		CustomFields: withCaseID("1234567890"),
		Journals: []domain.JournalEntry{
			journal("Answer: 1234567890 late", "2024-01-05"),
			journal("Question: follow-up", "2024-01-03"),
		},
	}
	got, trace := Classify(ticket, DefaultPolicy())
	require.Equal(t, StatusOK, got.Status)
	require.True(t, trace.Sorted)
	require.Equal(t, "follow-up", got.PreviousQuestion)
	require.Equal(t, "journal", trace.QuestionSource)
}

func TestClassify_UnsortableJournalsKeepInputOrder(t *testing.T) {
	ticket := domain.TicketRecord{
		CustomFields: withCaseID("1234567890"),
		Journals: []domain.JournalEntry{
			journal("Question: q", "2024-01-05"),
			{Notes: "Answer: 1234567890 a"},
		},
	}
	got, trace := Classify(ticket, DefaultPolicy())
	require.False(t, trace.Sorted)
	require.NotEmpty(t, trace.SortFallback)
	require.Equal(t, StatusOK, got.Status)
	require.Equal(t, 1, trace.LastAnswerIndex)
}

func TestClassify_NoAnswerProperty(t *testing.T) {
	tickets := []domain.TicketRecord{
		{},
		{Description: "Question: hello", CustomFields: withCaseID("1234567890")},
		{Journals: []domain.JournalEntry{journal("Question: a", "1"), journal("", "2"), journal("note", "3")}},
	}
	for i, ticket := range tickets {
		got, _ := Classify(ticket, DefaultPolicy())
		if got.Status != StatusNoAnswerFound || got.LastAnswer != "" || got.PreviousQuestion != "" {
			t.Fatalf("ticket %d: expected empty no_answer_found, got %+v", i, got)
		}
	}
}

func TestClassify_CaseIDFieldMissingIgnoresAnswerContent(t *testing.T) {
	answers := []string{
		"Answer: 1234567890",
		"Answer: 9999999999",
		"Answer: no digits",
		"Answer",
	}
	fields := [][]domain.CustomField{
		nil,
		{{Name: "caseid", Value: "   "}},
		{{Name: "other", Value: "1234567890"}},
	}
	for _, a := range answers {
		for _, f := range fields {
			ticket := domain.TicketRecord{
				Description:  "Question: q",
				CustomFields: f,
				Journals:     []domain.JournalEntry{journal(a, "1")},
			}
			got, _ := Classify(ticket, DefaultPolicy())
			if got.Status != StatusCaseIDFieldMissing {
				t.Fatalf("answer %q fields %+v: expected caseid_field_missing, got %s", a, f, got.Status)
			}
			if got.LastAnswer != "" || got.PreviousQuestion != "" {
				t.Fatalf("expected suppressed pair, got %+v", got)
			}
		}
	}
}

func TestClassify_CaseIDScanWindow(t *testing.T) {
	tests := []struct {
		answer string
		want   Status
	}{
		{"Answer: 1234567890", StatusOK},
		{"Answer:\nl1\nl2 ref 1234567890", StatusOK},
		{"Answer:\nl1\nl2\nl3\n1234567890", StatusCaseIDMissing},
		{"Answer: 12345678901", StatusCaseIDMissing},
		{"Answer: 123456789", StatusCaseIDMissing},
		{"Answer: ０１２３４５６７８９", StatusCaseIDMissing},
		{"Answer: 9999999999 and 1234567890", StatusOK},
		{"Answer: 9999999999", StatusCaseIDMismatch},
		{"Answer: case#1234567890.", StatusOK},
	}
	for _, tt := range tests {
		ticket := domain.TicketRecord{
			Description:  "Question: q",
			CustomFields: withCaseID("1234567890"),
			Journals:     []domain.JournalEntry{journal(tt.answer, "1")},
		}
		got, trace := Classify(ticket, DefaultPolicy())
		if got.Status != tt.want {
			t.Fatalf("answer %q: expected %s, got %s (candidates %v)", tt.answer, tt.want, got.Status, trace.CaseIDCandidates)
		}
	}
}

func TestClassify_MismatchSuppressesPair(t *testing.T) {
	ticket := domain.TicketRecord{
		Description:  "Question: q",
		CustomFields: withCaseID("1234567890"),
		Journals:     []domain.JournalEntry{journal("Answer: 9999999999 done", "1")},
	}
	got, trace := Classify(ticket, DefaultPolicy())
	require.Equal(t, StatusCaseIDMismatch, got.Status)
	require.Empty(t, got.LastAnswer)
	require.Empty(t, got.PreviousQuestion)
	require.Equal(t, []string{"9999999999"}, trace.CaseIDCandidates)
	require.NotEmpty(t, got.Entries)
}

func TestClassify_PairIsUnscrubbed(t *testing.T) {
	ticket := domain.TicketRecord{
		Description:  "Question: q",
		CreatedOn:    "2024-01-01",
		CustomFields: withCaseID("1234567890"),
		Journals: []domain.JournalEntry{
			journal("Answer: 1234567890 fixed\n2024-01-02 10:00:00 INFO restart\nall good", "2024-01-02"),
		},
	}
	got, _ := Classify(ticket, DefaultPolicy())
	require.Equal(t, StatusOK, got.Status)
	require.Contains(t, got.LastAnswer, "INFO restart")

	want := []Entry{
		{Type: EntryQuestion, Text: "q", CreatedOn: "2024-01-01"},
		{Type: EntryAnswer, Text: "1234567890 fixed\nall good", CreatedOn: "2024-01-02"},
	}
	if diff := cmp.Diff(want, got.Entries); diff != "" {
		t.Fatalf("unexpected entries (-want +got):\n%s", diff)
	}
}

func TestClassify_LastAnswerWithBothMarkersIsAnswerEntry(t *testing.T) {
	ticket := domain.TicketRecord{
		CustomFields: withCaseID("1234567890"),
		Journals: []domain.JournalEntry{
			journal("Question: is the Answer: field required?", "2024-01-02"),
			journal("Answer: 1234567890\nRe your Question: yes", "2024-01-03"),
		},
	}
	got, trace := Classify(ticket, DefaultPolicy())
	require.Equal(t, StatusOK, got.Status)
	require.Equal(t, 1, trace.LastAnswerIndex)
	require.Equal(t, "1234567890\nRe your Question: yes", got.LastAnswer)
	require.Equal(t, "is the Answer: field required?", got.PreviousQuestion)

	want := []Entry{
		{Type: EntryQuestion, Text: "is the Answer: field required?", CreatedOn: "2024-01-02"},
		{Type: EntryAnswer, Text: "1234567890\nRe your Question: yes", CreatedOn: "2024-01-03"},
	}
	if diff := cmp.Diff(want, got.Entries); diff != "" {
		t.Fatalf("unexpected entries (-want +got):\n%s", diff)
	}
}

func TestClassify_TrimmingDoesNotAffectStatus(t *testing.T) {
	line := strings.Repeat("z", 150)
	body := strings.TrimSuffix(strings.Repeat(line+"\n", 10), "\n")

	var journals []domain.JournalEntry
	for i := 0; i < 6; i++ {
		journals = append(journals, journal("Question\n"+sep41+"\n"+body, fmt.Sprintf("2024-01-%02dT00", 2*i+1)))
		journals = append(journals, journal("Answer\n"+sep41+"\n1234567890\n"+body, fmt.Sprintf("2024-01-%02dT00", 2*i+2)))
	}
	ticket := domain.TicketRecord{CustomFields: withCaseID("1234567890"), Journals: journals}

	got, trace := Classify(ticket, DefaultPolicy())
	require.Equal(t, StatusOK, got.Status)
	require.True(t, trace.Trim.Dropped > 0)
	require.True(t, strings.HasPrefix(got.LastAnswer, "1234567890\n"))
	require.Equal(t, body, got.PreviousQuestion)

	total := 0
	for i, e := range got.Entries {
		total += utf8.RuneCountInString(e.Text)
		if i > 0 && e.CreatedOn < got.Entries[i-1].CreatedOn {
			t.Fatalf("entries not chronological at %d", i)
		}
	}
	require.LessOrEqual(t, total, 6000)
	require.Equal(t, journals[len(journals)-1].CreatedOn, got.Entries[len(got.Entries)-1].CreatedOn)
}

func TestClassify_Idempotent(t *testing.T) {
	raw := []byte(`{"issue": {"id": 9, "description": "Question: q", "created_on": "2024-01-01",
		"custom_fields": [{"name": "caseid", "value": "1234567890"}],
		"journals": [{"notes": "Answer: 1234567890 ok", "created_on": "2024-01-02"},
		             {"notes": "", "created_on": "2024-01-03"}]}}`)

	first, _ := ClassifyJSON(raw, DefaultPolicy())
	second, _ := ClassifyJSON(raw, DefaultPolicy())
	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
	require.Equal(t, StatusOK, first.Status)
}

func TestClassifyPayload_Empty(t *testing.T) {
	for _, payload := range []any{nil, "x", []any{}, map[string]any{"inputs": []any{1, 2}}} {
		got, _ := ClassifyPayload(payload, DefaultPolicy())
		if got.Status != StatusIncomplete || got.Entries == nil || len(got.Entries) != 0 {
			t.Fatalf("payload %#v: expected empty incomplete result, got %+v", payload, got)
		}
	}
}

func TestResult_JSONShape(t *testing.T) {
	got, _ := Classify(domain.TicketRecord{}, DefaultPolicy())
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"no_answer_found","last_answer":"","previous_question":"","entries":[]}`, string(raw))
}

func TestClassify_DoesNotMutateTicket(t *testing.T) {
	ticket := domain.TicketRecord{
		CustomFields: withCaseID("1234567890"),
		Journals: []domain.JournalEntry{
			journal("Answer: 1234567890", "2024-01-02"),
			journal("Question: q", "2024-01-01"),
		},
	}
	before := ticket.Journals[0].Notes
	Classify(ticket, DefaultPolicy())
	require.Equal(t, before, ticket.Journals[0].Notes)
}
