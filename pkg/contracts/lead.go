// Package contracts holds the shared domain types of the outreach engine.
// Components communicate exclusively through these types; none of them
// carry behavior beyond simple classification helpers.
package contracts

import "time"

// LeadStatus is the sales-funnel state of a lead.
type LeadStatus string

// Lead status constants, roughly in funnel order.
const (
	StatusIngested       LeadStatus = "ingested"
	StatusScored         LeadStatus = "scored"
	StatusHot            LeadStatus = "hot"
	StatusWarm           LeadStatus = "warm"
	StatusCool           LeadStatus = "cool"
	StatusContacting     LeadStatus = "contacting"
	StatusContacted      LeadStatus = "contacted"
	StatusQualified      LeadStatus = "qualified"
	StatusAppointmentSet LeadStatus = "appointment_set"
	StatusNurturing      LeadStatus = "nurturing"
	StatusClosedWon      LeadStatus = "closed_won"
	StatusClosedLost     LeadStatus = "closed_lost"
	StatusDisqualified   LeadStatus = "disqualified"
	StatusDNC            LeadStatus = "dnc"
	StatusArchived       LeadStatus = "archived"
)

// IsTerminal reports whether no further automated outreach is permitted.
func (s LeadStatus) IsTerminal() bool {
	switch s {
	case StatusClosedWon, StatusClosedLost, StatusDNC, StatusDisqualified, StatusArchived:
		return true
	}
	return false
}

// IsProtected reports whether automated disposition handling must never
// overwrite this status. Protected leads belong to a human rep.
func (s LeadStatus) IsProtected() bool {
	switch s {
	case StatusAppointmentSet, StatusQualified, StatusClosedWon:
		return true
	}
	return false
}

// Lead is the unit of work tracked through the funnel.
//
// Counters are monotonically non-decreasing and owned by the Contact
// Ledger; callers must never write them read-modify-write.
type Lead struct {
	ID              string      `json:"id"`
	FirstName       string      `json:"first_name,omitempty"`
	LastName        string      `json:"last_name,omitempty"`
	Phone           string      `json:"phone,omitempty"`
	Email           string      `json:"email,omitempty"`
	Status          LeadStatus  `json:"status"`
	Score           int         `json:"score"`
	CallAttempts    int         `json:"call_attempts"`
	SMSSent         int         `json:"sms_sent"`
	EmailSent       int         `json:"email_sent"`
	LastContactedAt *time.Time  `json:"last_contacted_at,omitempty"`
	NextOutreachAt  *time.Time  `json:"next_outreach_at,omitempty"`
	NextChannel     Channel     `json:"next_outreach_channel,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Name returns a display name, falling back to "Homeowner".
func (l *Lead) Name() string {
	name := l.FirstName
	if l.LastName != "" {
		if name != "" {
			name += " "
		}
		name += l.LastName
	}
	if name == "" {
		return "Homeowner"
	}
	return name
}
