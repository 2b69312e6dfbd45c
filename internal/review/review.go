// Package review turns a reviewer's free-text judgment into a structured verdict.
package review

import (
	"errors"
	"regexp"
	"strings"

	"reviewbot/internal/domain"
)

type Code int

const (
	CodeParseError Code = -1
	CodeUnknown    Code = 0
	CodeApproved   Code = 1
	CodeRejected   Code = 2
)

const (
	StatusOK         = "ok"
	StatusParseError = "parse_error"
	StatusError      = "error"
)

// ErrNoResult means a reviewer answered without a usable judgment.
var ErrNoResult = errors.New("reviewer produced no usable result")

// DefaultReason fills Verdict.Reason when the text carries no reason line.
const DefaultReason = "no reason given"

var (
	resultLine = regexp.MustCompile(`(?i)(査閲結果|結果|\breview\s*result|\bresult)\s*[:：]\s*([^\r\n]+)`)
	reasonText = regexp.MustCompile(`(?is)(理由|原因|\breason|\bcause)\s*[:：]\s*(.+)`)
	digitsOnly = regexp.MustCompile(`^[0-9]+$`)
	whitespace = regexp.MustCompile(`\s+`)
)

type Verdict struct {
	Status string `json:"status"`
	Label  string `json:"result_label"`
	Reason string `json:"result_reason"`
	Code   Code   `json:"result_code"`
}

// Usable reports whether text can carry a judgment at all. Blank text, the
// literals "null" and "None", and bare numbers are not usable.
func Usable(text string) bool {
	s := strings.TrimSpace(text)
	switch s {
	case "", "null", "None":
		return false
	}
	return !digitsOnly.MatchString(s)
}

// Parse extracts the result label and reason from text such as
// "result: approved\nreason: matches the log".
func Parse(text string) Verdict {
	text = strings.TrimSpace(text)
	if !Usable(text) {
		return Verdict{Status: StatusError, Code: CodeParseError}
	}

	label := ""
	if m := resultLine.FindStringSubmatch(text); m != nil {
		label = whitespace.ReplaceAllString(m[2], "")
	}
	reason := DefaultReason
	if m := reasonText.FindStringSubmatch(text); m != nil {
		r := strings.ReplaceAll(m[2], "\r", "")
		r = strings.TrimSpace(strings.ReplaceAll(r, "\n", " "))
		if r != "" {
			reason = r
		}
	}

	code := labelCode(label)
	status := StatusOK
	if code == CodeParseError {
		status = StatusParseError
	}
	return Verdict{Status: status, Label: label, Reason: reason, Code: code}
}

func labelCode(label string) Code {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "承認"), strings.HasPrefix(l, "approve"):
		return CodeApproved
	case strings.Contains(l, "却下"), strings.HasPrefix(l, "reject"):
		return CodeRejected
	case strings.Contains(l, "不明"), strings.HasPrefix(l, "unknown"):
		return CodeUnknown
	default:
		return CodeParseError
	}
}

// Outcome maps a decided verdict onto a notification outcome.
func (v Verdict) Outcome() (domain.Outcome, bool) {
	switch v.Code {
	case CodeApproved:
		return domain.OutcomeApproved, true
	case CodeRejected:
		return domain.OutcomeRejected, true
	default:
		return "", false
	}
}
