// Package qa recovers the latest question/answer exchange from a ticket's
// description and journals and classifies how trustworthy that exchange is.
//
// Everything here is a pure function of its input. Nothing logs, nothing
// blocks, and malformed input is encoded as empty strings or a status code,
// never as an error.
package qa

type Status string

const (
	StatusOK                    Status = "ok"
	StatusNoAnswerFound         Status = "no_answer_found"
	StatusUnansweredNewQuestion Status = "unanswered_new_question"
	StatusCaseIDFieldMissing    Status = "caseid_field_missing"
	StatusCaseIDMissing         Status = "caseid_missing"
	StatusCaseIDMismatch        Status = "caseid_mismatch"
	StatusIncomplete            Status = "incomplete"
)

type TrimMode string

const (
	TrimByChars TrimMode = "chars"
	TrimByCount TrimMode = "count"
)

const (
	defaultAnswerMarker       = "Answer"
	defaultQuestionMarker     = "Question"
	defaultSeparatorMinDashes = 20
	defaultCaseIDField        = "caseid"
	defaultCaseIDLength       = 10
	defaultCaseIDScanLines    = 3
	defaultMaxLineChars       = 200
	defaultOmittedSentinel    = "[log omitted]"
	defaultMaxChars           = 6000
	defaultMaxEntries         = 10
)

// Policy holds every knob the engine exposes. The zero value is usable:
// unset fields fall back to the defaults returned by DefaultPolicy.
type Policy struct {
	AnswerMarker   string
	QuestionMarker string
	// SeparatorMinDashes is the shortest all-dash line treated as the
	// delimiter before a reply body.
	SeparatorMinDashes int

	CaseIDField     string
	CaseIDLength    int
	CaseIDScanLines int

	MaxLineChars    int
	OmittedSentinel string

	TrimMode   TrimMode
	MaxChars   int
	MaxEntries int
}

func DefaultPolicy() Policy {
	return Policy{
		AnswerMarker:       defaultAnswerMarker,
		QuestionMarker:     defaultQuestionMarker,
		SeparatorMinDashes: defaultSeparatorMinDashes,
		CaseIDField:        defaultCaseIDField,
		CaseIDLength:       defaultCaseIDLength,
		CaseIDScanLines:    defaultCaseIDScanLines,
		MaxLineChars:       defaultMaxLineChars,
		OmittedSentinel:    defaultOmittedSentinel,
		TrimMode:           TrimByChars,
		MaxChars:           defaultMaxChars,
		MaxEntries:         defaultMaxEntries,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.AnswerMarker == "" {
		p.AnswerMarker = d.AnswerMarker
	}
	if p.QuestionMarker == "" {
		p.QuestionMarker = d.QuestionMarker
	}
	if p.SeparatorMinDashes <= 0 {
		p.SeparatorMinDashes = d.SeparatorMinDashes
	}
	if p.CaseIDField == "" {
		p.CaseIDField = d.CaseIDField
	}
	if p.CaseIDLength <= 0 {
		p.CaseIDLength = d.CaseIDLength
	}
	if p.CaseIDScanLines <= 0 {
		p.CaseIDScanLines = d.CaseIDScanLines
	}
	if p.MaxLineChars <= 0 {
		p.MaxLineChars = d.MaxLineChars
	}
	if p.OmittedSentinel == "" {
		p.OmittedSentinel = d.OmittedSentinel
	}
	if p.TrimMode != TrimByCount {
		p.TrimMode = TrimByChars
	}
	if p.MaxChars <= 0 {
		p.MaxChars = d.MaxChars
	}
	if p.MaxEntries <= 0 {
		p.MaxEntries = d.MaxEntries
	}
	return p
}
