package audit

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/solarcommand/outreach/pkg/contracts"
)

// Recorder is the write-side convenience over a Trail. It never fails the
// caller: an audit write error is logged and dropped rather than blocking
// the business mutation it describes, which already committed.
type Recorder struct {
	trail *Trail
	log   zerolog.Logger
}

// NewRecorder creates a recorder over the trail.
func NewRecorder(trail *Trail, log zerolog.Logger) *Recorder {
	return &Recorder{trail: trail, log: log.With().Str("component", "audit").Logger()}
}

// Trail exposes the underlying trail for queries.
func (r *Recorder) Trail() *Trail { return r.trail }

// RecordDenial records a compliance gate deny for a lead.
func (r *Recorder) RecordDenial(ctx context.Context, leadID, reason, detail string) {
	_ = ctx
	r.append(Entry{
		EntryType:  EntryComplianceDenial,
		Actor:      "system",
		Action:     "compliance.deny",
		EntityType: "lead",
		EntityID:   leadID,
		NewValue:   reason,
		Metadata:   map[string]string{"detail": detail},
	})
}

// RecordTransition records a lead status transition.
func (r *Recorder) RecordTransition(ctx context.Context, leadID string, old, next contracts.LeadStatus, action string) {
	_ = ctx
	r.append(Entry{
		EntryType:  EntryStatusTransition,
		Actor:      "worker",
		Action:     action,
		EntityType: "lead",
		EntityID:   leadID,
		OldValue:   string(old),
		NewValue:   string(next),
	})
}

// RecordConsent records a consent event together with the status change
// it caused.
func (r *Recorder) RecordConsent(ctx context.Context, leadID string, oldStatus, newStatus contracts.LeadStatus, meta map[string]string) {
	_ = ctx
	r.append(Entry{
		EntryType:  EntryConsent,
		Actor:      "ai_agent",
		Action:     "consent.opt_out",
		EntityType: "lead",
		EntityID:   leadID,
		OldValue:   string(oldStatus),
		NewValue:   string(newStatus),
		Metadata:   meta,
	})
}

// RecordAttempt records a completed outreach attempt.
func (r *Recorder) RecordAttempt(ctx context.Context, attempt *contracts.OutreachAttempt, outcome string) {
	_ = ctx
	payload, _ := json.Marshal(attempt)
	r.append(Entry{
		EntryType:  EntryAttempt,
		Actor:      "worker",
		Action:     "outreach." + string(attempt.Channel) + "." + outcome,
		EntityType: "outreach_attempt",
		EntityID:   attempt.ID,
		NewValue:   string(attempt.Disposition),
		Payload:    payload,
	})
}

// RecordReasoningCall records one external reasoning invocation with its
// input fingerprint and full output, for reproducibility.
func (r *Recorder) RecordReasoningCall(ctx context.Context, leadID string, payload any, meta map[string]string) {
	_ = ctx
	raw, _ := json.Marshal(payload)
	r.append(Entry{
		EntryType:  EntryReasoningCall,
		Actor:      "ai_agent",
		Action:     "nba.reasoning_call",
		EntityType: "lead",
		EntityID:   leadID,
		Payload:    raw,
		Metadata:   meta,
	})
}

// RecordAnomaly records an invariant violation rejected at a mutation
// boundary. Fatal to the write, not to the worker.
func (r *Recorder) RecordAnomaly(ctx context.Context, entityType, entityID, detail string) {
	_ = ctx
	r.append(Entry{
		EntryType:  EntryAnomaly,
		Actor:      "worker",
		Action:     "invariant.violation",
		EntityType: entityType,
		EntityID:   entityID,
		NewValue:   detail,
	})
}

func (r *Recorder) append(e Entry) {
	if _, err := r.trail.Append(e); err != nil {
		r.log.Error().Err(err).Str("action", e.Action).Msg("audit append failed")
	}
}
