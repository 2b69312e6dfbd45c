package qa

import (
	"regexp"
	"slices"
	"strings"

	"reviewbot/internal/domain"
)

var digitRun = regexp.MustCompile(`[0-9]+`)

// DeclaredCaseID returns the ticket's caseid custom field value, or "".
func DeclaredCaseID(ticket domain.TicketRecord, p Policy) string {
	p = p.withDefaults()
	return ticket.CustomFieldValue(p.CaseIDField)
}

// CaseIDCandidates returns the distinct digit runs of exactly the caseid
// length found in the first lines of an answer. Longer runs do not match.
func CaseIDCandidates(answer string, p Policy) []string {
	p = p.withDefaults()
	lines := strings.Split(answer, "\n")
	if len(lines) > p.CaseIDScanLines {
		lines = lines[:p.CaseIDScanLines]
	}
	var out []string
	for _, line := range lines {
		for _, tok := range digitRun.FindAllString(line, -1) {
			if len(tok) == p.CaseIDLength && !slices.Contains(out, tok) {
				out = append(out, tok)
			}
		}
	}
	return out
}
