package qa

import (
	"encoding/json"
	"iter"
	"strconv"
	"strings"

	"reviewbot/internal/domain"
)

// Records yields the record-shaped entries of a loosely shaped payload.
// A record carrying an "inputs" key is unwrapped first. A bare record yields
// itself, a sequence yields its record elements, anything else yields nothing.
func Records(payload any) iter.Seq[map[string]any] {
	candidate := payload
	if m, ok := payload.(map[string]any); ok {
		if inner, ok := m["inputs"]; ok {
			candidate = inner
		}
	}
	return func(yield func(map[string]any) bool) {
		switch v := candidate.(type) {
		case map[string]any:
			yield(v)
		case []any:
			for _, e := range v {
				m, ok := e.(map[string]any)
				if !ok {
					continue
				}
				if !yield(m) {
					return
				}
			}
		case []map[string]any:
			for _, m := range v {
				if m == nil {
					continue
				}
				if !yield(m) {
					return
				}
			}
		}
	}
}

// Tickets parses every record of payload into a TicketRecord.
func Tickets(payload any) []domain.TicketRecord {
	var out []domain.TicketRecord
	for rec := range Records(payload) {
		out = append(out, ParseTicket(rec))
	}
	return out
}

// DecodeTickets decodes raw JSON and normalizes it. Undecodable input yields no tickets.
func DecodeTickets(data []byte) []domain.TicketRecord {
	payload, ok := decodePayload(data)
	if !ok {
		return nil
	}
	return Tickets(payload)
}

func decodePayload(data []byte) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, false
	}
	return payload, true
}

// ParseTicket converts one {issue: {...}} record into a TicketRecord.
// Absent or wrongly typed fields default to empty values.
func ParseTicket(record map[string]any) domain.TicketRecord {
	issue, _ := record["issue"].(map[string]any)
	if issue == nil {
		return domain.TicketRecord{}
	}
	ticket := domain.TicketRecord{
		ID:          scalarString(issue["id"]),
		Subject:     scalarString(issue["subject"]),
		Description: scalarString(issue["description"]),
		CreatedOn:   scalarString(issue["created_on"]),
		UpdatedOn:   scalarString(issue["updated_on"]),
	}

	if fields, ok := issue["custom_fields"].([]any); ok {
		for _, raw := range fields {
			f, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			ticket.CustomFields = append(ticket.CustomFields, domain.CustomField{
				Name:  scalarString(f["name"]),
				Value: fieldValue(f["value"]),
			})
		}
	}

	if journals, ok := issue["journals"].([]any); ok {
		for _, raw := range journals {
			j, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			entry := domain.JournalEntry{Notes: scalarString(j["notes"])}
			if created, ok := j["created_on"].(string); ok {
				entry.CreatedOn = created
				entry.HasCreatedOn = true
			}
			ticket.Journals = append(ticket.Journals, entry)
		}
	}
	return ticket
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// fieldValue flattens multi-value custom fields into a comma-separated string.
func fieldValue(v any) string {
	list, ok := v.([]any)
	if !ok {
		return scalarString(v)
	}
	var parts []string
	for _, item := range list {
		if s := strings.TrimSpace(scalarString(item)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ",")
}
