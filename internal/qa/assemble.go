package qa

import (
	"strings"

	"reviewbot/internal/domain"
)

type EntryType string

const (
	EntryQuestion EntryType = "question"
	EntryAnswer   EntryType = "answer"
)

// Entry is one turn of the recovered conversation.
type Entry struct {
	Type      EntryType `json:"type"`
	Text      string    `json:"text"`
	CreatedOn string    `json:"created_on"`
}

// Assemble builds the chronological conversation from the description and
// already sequenced journals. A journal carrying both markers is a question,
// except the last answer-marked journal, which stays the answer Classify reports.
func Assemble(ticket domain.TicketRecord, journals []domain.JournalEntry, p Policy) []Entry {
	p = p.withDefaults()
	entries := []Entry{}
	last := lastAnswerIndex(journals, p)

	if IsQuestion(ticket.Description, p) {
		if text := extractAs(ticket.Description, p.QuestionMarker, p); text != "" {
			entries = append(entries, Entry{Type: EntryQuestion, Text: Scrub(text, p), CreatedOn: ticket.CreatedOn})
		}
	}

	for i, j := range journals {
		if strings.TrimSpace(j.Notes) == "" {
			continue
		}
		var typ EntryType
		var label string
		switch {
		case i == last:
			typ, label = EntryAnswer, p.AnswerMarker
		case IsQuestion(j.Notes, p):
			typ, label = EntryQuestion, p.QuestionMarker
		case IsAnswer(j.Notes, p):
			typ, label = EntryAnswer, p.AnswerMarker
		default:
			continue
		}
		text := extractAs(j.Notes, label, p)
		if text == "" {
			continue
		}
		entries = append(entries, Entry{Type: typ, Text: Scrub(text, p), CreatedOn: j.CreatedOn})
	}
	return entries
}

func lastAnswerIndex(journals []domain.JournalEntry, p Policy) int {
	last := -1
	for i, j := range journals {
		if IsAnswer(j.Notes, p) {
			last = i
		}
	}
	return last
}
