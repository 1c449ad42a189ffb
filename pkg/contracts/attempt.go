package contracts

import "time"

// Disposition is the terminal outcome code of one outreach attempt.
type Disposition string

// Disposition constants.
const (
	DispositionAppointmentBooked  Disposition = "appointment_booked"
	DispositionCallbackScheduled  Disposition = "callback_scheduled"
	DispositionInterestedNotReady Disposition = "interested_not_ready"
	DispositionNotInterested      Disposition = "not_interested"
	DispositionNotHomeowner       Disposition = "not_homeowner"
	DispositionWrongNumber        Disposition = "wrong_number"
	DispositionVoicemail          Disposition = "voicemail"
	DispositionNoAnswer           Disposition = "no_answer"
	DispositionDoNotCall          Disposition = "do_not_call"
	DispositionCompleted          Disposition = "completed"
	DispositionFailed             Disposition = "failed"
)

// DispositionNone is the zero value: the attempt is still pending.
const DispositionNone Disposition = ""

// StatusForDisposition is the finite disposition-to-status mapping applied
// after a voice attempt resolves. The mapping is advisory: the Contact
// Ledger refuses to apply it to a lead in a protected status.
//
// Dispositions absent from the map (completed, failed, do_not_call on
// non-voice channels) leave the lead in StatusContacting.
func StatusForDisposition(d Disposition) (LeadStatus, bool) {
	switch d {
	case DispositionAppointmentBooked:
		return StatusQualified, true
	case DispositionCallbackScheduled:
		return StatusContacting, true
	case DispositionInterestedNotReady:
		return StatusNurturing, true
	case DispositionNotInterested:
		return StatusClosedLost, true
	case DispositionNotHomeowner:
		return StatusDisqualified, true
	case DispositionWrongNumber:
		return StatusDisqualified, true
	case DispositionVoicemail:
		return StatusContacting, true
	case DispositionNoAnswer:
		return StatusContacting, true
	case DispositionDoNotCall:
		return StatusDNC, true
	}
	return "", false
}

// OutreachAttempt is one row per dispatch. An attempt is created pending
// (empty Disposition) and transitions exactly once to a terminal
// disposition; a pending attempt is the unit of idempotent retry.
type OutreachAttempt struct {
	ID              string      `json:"id"`
	LeadID          string      `json:"lead_id"`
	Channel         Channel     `json:"channel"`
	Disposition     Disposition `json:"disposition,omitempty"`
	ExternalID      string      `json:"external_id,omitempty"`
	DurationSeconds int         `json:"duration_seconds,omitempty"`
	MessageBody     string      `json:"message_body,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	EndedAt         *time.Time  `json:"ended_at,omitempty"`
}

// Pending reports whether the attempt still awaits a terminal disposition.
func (a *OutreachAttempt) Pending() bool {
	return a.Disposition == DispositionNone
}
