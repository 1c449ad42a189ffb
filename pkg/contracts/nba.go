package contracts

import "time"

// NBAAction is the fixed next-best-action vocabulary. Reasoning providers
// are constrained to this set; anything else is treated as malformed.
type NBAAction string

// NBA action constants.
const (
	ActionCall       NBAAction = "call"
	ActionSMS        NBAAction = "sms"
	ActionEmail      NBAAction = "email"
	ActionWait       NBAAction = "wait"
	ActionRepHandoff NBAAction = "rep_handoff"
	ActionNurture    NBAAction = "nurture"
	ActionClose      NBAAction = "close"
)

// Valid reports whether a is in the action vocabulary.
func (a NBAAction) Valid() bool {
	switch a {
	case ActionCall, ActionSMS, ActionEmail, ActionWait, ActionRepHandoff, ActionNurture, ActionClose:
		return true
	}
	return false
}

// NBADecision is an immutable recommendation snapshot. A new decision
// supersedes, never edits, an old one; consumers ignore decisions past
// their expiry.
type NBADecision struct {
	ID           string     `json:"id"`
	LeadID       string     `json:"lead_id"`
	Action       NBAAction  `json:"recommended_action"`
	Channel      Channel    `json:"recommended_channel,omitempty"`
	ScheduleTime *time.Time `json:"schedule_time,omitempty"`
	ReasonCodes  []string   `json:"reason_codes,omitempty"`
	Confidence   float64    `json:"confidence"`
	Model        string     `json:"model,omitempty"`
	Applied      bool       `json:"applied"`
	AppliedAt    *time.Time `json:"applied_at,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Expired reports whether the decision is stale at now and must be
// recomputed before use.
func (d *NBADecision) Expired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}
