package qa

import (
	"slices"

	"reviewbot/internal/domain"
)

// Result is the engine output for one ticket.
type Result struct {
	Status           Status  `json:"status"`
	LastAnswer       string  `json:"last_answer"`
	PreviousQuestion string  `json:"previous_question"`
	Entries          []Entry `json:"entries"`
}

// Trace explains how a Result was reached. Callers decide whether to log it.
type Trace struct {
	TicketID                string    `json:"ticket_id"`
	Journals                int       `json:"journals"`
	Sorted                  bool      `json:"sorted"`
	SortFallback            string    `json:"sort_fallback,omitempty"`
	LastAnswerIndex         int       `json:"last_answer_index"`
	UnansweredQuestionIndex int       `json:"unanswered_question_index"`
	QuestionSource          string    `json:"question_source,omitempty"`
	DeclaredCaseID          string    `json:"declared_caseid,omitempty"`
	CaseIDCandidates        []string  `json:"caseid_candidates,omitempty"`
	Rule                    Status    `json:"rule"`
	Trim                    TrimStats `json:"trim"`
}

const (
	questionFromJournal     = "journal"
	questionFromDescription = "description"
)

// ClassifyPayload classifies the first record found in payload. A payload
// without any record is incomplete.
func ClassifyPayload(payload any, p Policy) (Result, Trace) {
	for rec := range Records(payload) {
		return Classify(ParseTicket(rec), p)
	}
	return Result{Status: StatusIncomplete, Entries: []Entry{}}, Trace{
		LastAnswerIndex:         -1,
		UnansweredQuestionIndex: -1,
		Rule:                    StatusIncomplete,
	}
}

// ClassifyJSON decodes data and classifies its first record.
func ClassifyJSON(data []byte, p Policy) (Result, Trace) {
	payload, _ := decodePayload(data)
	return ClassifyPayload(payload, p)
}

// Classify runs the rule chain over one ticket. The first matching rule
// decides the status. Entries are trimmed independently of the status.
func Classify(ticket domain.TicketRecord, p Policy) (Result, Trace) {
	p = p.withDefaults()
	seq := SequenceJournals(ticket.Journals)
	journals := seq.Journals

	trace := Trace{
		TicketID:                ticket.ID,
		Journals:                len(journals),
		Sorted:                  seq.Sorted,
		SortFallback:            seq.Reason,
		LastAnswerIndex:         -1,
		UnansweredQuestionIndex: -1,
	}

	entries, stats := Trim(Assemble(ticket, journals, p), p)
	trace.Trim = stats

	finish := func(status Status, answer, question string) (Result, Trace) {
		trace.Rule = status
		return Result{
			Status:           status,
			LastAnswer:       answer,
			PreviousQuestion: question,
			Entries:          entries,
		}, trace
	}

	last := lastAnswerIndex(journals, p)
	trace.LastAnswerIndex = last
	if last < 0 {
		return finish(StatusNoAnswerFound, "", "")
	}

	// Every journal after the last answer lacks the answer marker, so any
	// question there has no later answer.
	for i := last + 1; i < len(journals); i++ {
		if IsQuestion(journals[i].Notes, p) {
			trace.UnansweredQuestionIndex = i
			return finish(StatusUnansweredNewQuestion, "", "")
		}
	}

	answer := extractAs(journals[last].Notes, p.AnswerMarker, p)
	question := ""
	found := false
	for i := last - 1; i >= 0; i-- {
		if IsQuestion(journals[i].Notes, p) {
			question = extractAs(journals[i].Notes, p.QuestionMarker, p)
			trace.QuestionSource = questionFromJournal
			found = true
			break
		}
	}
	if !found && IsQuestion(ticket.Description, p) {
		question = extractAs(ticket.Description, p.QuestionMarker, p)
		trace.QuestionSource = questionFromDescription
	}

	declared := DeclaredCaseID(ticket, p)
	trace.DeclaredCaseID = declared
	if declared == "" {
		return finish(StatusCaseIDFieldMissing, "", "")
	}

	candidates := CaseIDCandidates(answer, p)
	trace.CaseIDCandidates = candidates
	if len(candidates) == 0 {
		return finish(StatusCaseIDMissing, answer, question)
	}
	if !slices.Contains(candidates, declared) {
		return finish(StatusCaseIDMismatch, "", "")
	}

	if answer == "" || question == "" {
		return finish(StatusIncomplete, answer, question)
	}
	return finish(StatusOK, answer, question)
}
