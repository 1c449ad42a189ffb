package contracts

import "time"

// ConsentStatus is the recorded state of a consent event.
type ConsentStatus string

// Consent status constants.
const (
	ConsentOptedIn  ConsentStatus = "opted_in"
	ConsentOptedOut ConsentStatus = "opted_out"
	ConsentPending  ConsentStatus = "pending"
	ConsentRevoked  ConsentStatus = "revoked"
)

// ConsentType scopes a consent record to channels.
type ConsentType string

// Consent type constants.
const (
	ConsentTypeVoice       ConsentType = "voice_call"
	ConsentTypeSMS         ConsentType = "sms"
	ConsentTypeEmail       ConsentType = "email"
	ConsentTypeAllChannels ConsentType = "all_channels"
)

// EvidenceKind describes how a consent event was captured.
type EvidenceKind string

// Evidence kind constants.
const (
	EvidenceVerbal   EvidenceKind = "verbal"
	EvidenceWritten  EvidenceKind = "written"
	EvidenceWebForm  EvidenceKind = "web_form"
	EvidenceSMSReply EvidenceKind = "sms_reply"
)

// ConsentRecord is append-only evidence of opt-in/opt-out. The most recent
// opted_out record for a channel blocks that channel until a later
// opted_in record exists (last-write-wins by RecordedAt).
type ConsentRecord struct {
	ID          string        `json:"id"`
	LeadID      string        `json:"lead_id"`
	Type        ConsentType   `json:"consent_type"`
	Status      ConsentStatus `json:"status"`
	Channel     Channel       `json:"channel"`
	Evidence    EvidenceKind  `json:"evidence_type,omitempty"`
	EvidenceURL string        `json:"evidence_url,omitempty"`
	RecordedAt  time.Time     `json:"recorded_at"`
}

// Covers reports whether the record applies to the given channel.
func (c *ConsentRecord) Covers(ch Channel) bool {
	if c.Type == ConsentTypeAllChannels {
		return true
	}
	return c.Channel == ch
}
