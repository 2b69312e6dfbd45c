package qa

import (
	"strings"

	"reviewbot/internal/domain"
)

const segmentJoiner = "\n---\n"

// Segments is the flat four-field view of a conversation: the latest answer
// and question plus everything before them joined with a divider.
type Segments struct {
	Status       Status `json:"status"`
	LastAnswer   string `json:"last_answer"`
	LastQuestion string `json:"last_question"`
	PrevAnswer   string `json:"prev_answer"`
	PrevQuestion string `json:"prev_question"`
}

func ExtractSegments(ticket domain.TicketRecord, p Policy) Segments {
	p = p.withDefaults()
	journals := SequenceJournals(ticket.Journals).Journals

	var answers, questions []string
	if IsQuestion(ticket.Description, p) {
		if q := extractAs(ticket.Description, p.QuestionMarker, p); q != "" {
			questions = append(questions, q)
		}
	}
	for _, j := range journals {
		if IsAnswer(j.Notes, p) {
			answers = append(answers, extractAs(j.Notes, p.AnswerMarker, p))
		}
		if IsQuestion(j.Notes, p) {
			questions = append(questions, extractAs(j.Notes, p.QuestionMarker, p))
		}
	}

	var s Segments
	if n := len(answers); n > 0 {
		s.LastAnswer = answers[n-1]
		s.PrevAnswer = strings.Join(answers[:n-1], segmentJoiner)
	}
	if n := len(questions); n > 0 {
		s.LastQuestion = questions[n-1]
		s.PrevQuestion = strings.Join(questions[:n-1], segmentJoiner)
	}
	s.Status = StatusIncomplete
	if s.LastAnswer != "" && s.LastQuestion != "" {
		s.Status = StatusOK
	}
	return s
}

// ExtractSegmentsPayload runs ExtractSegments over the first record of payload.
func ExtractSegmentsPayload(payload any, p Policy) Segments {
	for rec := range Records(payload) {
		return ExtractSegments(ParseTicket(rec), p)
	}
	return Segments{Status: StatusIncomplete}
}
