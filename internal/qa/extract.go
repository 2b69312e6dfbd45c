package qa

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var markupStripper = strings.NewReplacer("<pre>", "", "</pre>", "", "```", "")

func IsAnswer(text string, p Policy) bool {
	p = p.withDefaults()
	return strings.Contains(text, p.AnswerMarker)
}

func IsQuestion(text string, p Policy) bool {
	p = p.withDefaults()
	return strings.Contains(text, p.QuestionMarker)
}

// ExtractBody removes preformatted and code-fence markup, keeps only the text
// after the last separator line, and trims surrounding whitespace.
func ExtractBody(text string, p Policy) string {
	p = p.withDefaults()
	clean := strings.TrimSpace(markupStripper.Replace(text))
	if clean == "" {
		return ""
	}
	lines := strings.Split(clean, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if isSeparatorLine(lines[i], p.SeparatorMinDashes) {
			clean = strings.Join(lines[i+1:], "\n")
			break
		}
	}
	return strings.TrimSpace(clean)
}

// extractAs extracts the body and drops a leading role label such as
// "Question:" that some templates put right after the separator.
func extractAs(text, label string, p Policy) string {
	return stripLabel(ExtractBody(text, p), label)
}

func isSeparatorLine(line string, minDashes int) bool {
	s := strings.TrimSpace(line)
	return len(s) >= minDashes && strings.Trim(s, "-") == ""
}

func stripLabel(text, label string) string {
	if label == "" || !strings.HasPrefix(text, label) {
		return text
	}
	rest := text[len(label):]
	if rest == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(rest)
	switch {
	case r == ':' || r == '：':
		rest = rest[size:]
	case unicode.IsSpace(r):
		trimmed := strings.TrimLeft(rest, " \t")
		r, size = utf8.DecodeRuneInString(trimmed)
		if r == ':' || r == '：' {
			rest = trimmed[size:]
		} else if strings.HasPrefix(rest, "\n") || strings.HasPrefix(rest, "\r\n") {
			rest = trimmed
		} else {
			return text
		}
	default:
		return text
	}
	return strings.TrimSpace(rest)
}
