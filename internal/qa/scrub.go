package qa

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var logLinePrefix = regexp.MustCompile(`^\s*(\d{4}-\d{2}-\d{2}|\d{2}:\d{2}:\d{2}|INFO|ERROR|DEBUG|TRACE)`)

// Scrub drops log-like lines from text. Empty input stays empty; input whose
// every line is dropped becomes the omitted sentinel.
func Scrub(text string, p Policy) string {
	p = p.withDefaults()
	if text == "" {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if isNoiseLine(line, p.MaxLineChars) {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.TrimSpace(strings.Join(kept, "\n"))
	if out == "" {
		return p.OmittedSentinel
	}
	return out
}

func isNoiseLine(line string, maxChars int) bool {
	if logLinePrefix.MatchString(line) {
		return true
	}
	trimmed := strings.TrimSpace(line)
	if isBracketed(trimmed) {
		return true
	}
	return utf8.RuneCountInString(trimmed) > maxChars
}

func isBracketed(s string) bool {
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	return (first == '{' && last == '}') || (first == '[' && last == ']')
}
