package domain

import "strings"

type TicketRecord struct {
	ID           string
	Subject      string
	Description  string
	CreatedOn    string
	UpdatedOn    string
	CustomFields []CustomField
	Journals     []JournalEntry
}

type CustomField struct {
	Name  string
	Value string
}

type JournalEntry struct {
	Notes     string
	CreatedOn string
	// HasCreatedOn is false when created_on was absent or not a string.
	HasCreatedOn bool
}

// IssueSummary is the listing view of a ticket used to decide whether it changed.
type IssueSummary struct {
	ID        string
	Subject   string
	UpdatedOn string
}

// CustomFieldValue returns the trimmed value of the first field whose name
// matches (case-insensitive) and has a non-empty value.
func (t TicketRecord) CustomFieldValue(name string) string {
	name = strings.TrimSpace(name)
	for _, f := range t.CustomFields {
		if !strings.EqualFold(strings.TrimSpace(f.Name), name) {
			continue
		}
		if v := strings.TrimSpace(f.Value); v != "" {
			return v
		}
	}
	return ""
}
