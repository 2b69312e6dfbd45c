package domain

// Outcome is what a notification card announces.
type Outcome string

const (
	OutcomeApproved       Outcome = "approved"
	OutcomeRejected       Outcome = "rejected"
	OutcomeCaseIDMismatch Outcome = "caseid_mismatch"
)

// Escalates reports whether the outcome also goes to the secondary destination.
func (o Outcome) Escalates() bool {
	return o == OutcomeRejected || o == OutcomeCaseIDMismatch
}

type Card struct {
	TicketID  string
	Subject   string
	TicketURL string
	Outcome   Outcome
	Reason    string
	CaseID    string
}
