package compliance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/solarcommand/outreach/pkg/contracts"
)

// Opt-out keywords matched on word boundaries, case-insensitive.
var optOutKeywords = []string{
	"stop", "unsubscribe", "cancel", "end", "quit",
	"opt out", "optout", "opt-out", "remove me", "do not contact",
	"don't contact", "leave me alone",
}

var optOutPattern = func() *regexp.Regexp {
	quoted := make([]string, len(optOutKeywords))
	for i, k := range optOutKeywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}()

// IsOptOutMessage reports whether an inbound message contains an opt-out
// keyword.
func IsOptOutMessage(text string) bool {
	return optOutPattern.MatchString(text)
}

// ConsentWriter appends consent records and moves the lead to DNC.
// Implemented by the Contact Ledger.
type ConsentWriter interface {
	AppendConsent(ctx context.Context, rec *contracts.ConsentRecord) error
	SetStatus(ctx context.Context, leadID string, status contracts.LeadStatus) (contracts.LeadStatus, error)
}

// AuditRecorder receives the audit entries the opt-out processor emits.
type AuditRecorder interface {
	RecordConsent(ctx context.Context, leadID string, oldStatus, newStatus contracts.LeadStatus, meta map[string]string)
}

// OptOutProcessor converts an inbound opt-out into durable state: an
// append-only consent record, a DNC status transition, and an audit entry.
type OptOutProcessor struct {
	ledger ConsentWriter
	audit  AuditRecorder
	clock  func() time.Time
}

// NewOptOutProcessor creates a processor over the ledger and audit trail.
func NewOptOutProcessor(ledger ConsentWriter, audit AuditRecorder) *OptOutProcessor {
	return &OptOutProcessor{ledger: ledger, audit: audit, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (p *OptOutProcessor) WithClock(clock func() time.Time) *OptOutProcessor {
	p.clock = clock
	return p
}

// HandleOptOut records an opt-out received on the given channel. The
// consent record covers all channels: an explicit "stop" is honored
// everywhere, not just where it arrived.
func (p *OptOutProcessor) HandleOptOut(ctx context.Context, leadID string, ch contracts.Channel, messageBody string) error {
	rec := &contracts.ConsentRecord{
		LeadID:     leadID,
		Type:       contracts.ConsentTypeAllChannels,
		Status:     contracts.ConsentOptedOut,
		Channel:    ch,
		Evidence:   contracts.EvidenceSMSReply,
		RecordedAt: p.clock().UTC(),
	}
	if err := p.ledger.AppendConsent(ctx, rec); err != nil {
		return fmt.Errorf("append opt-out consent for lead %s: %w", leadID, err)
	}

	oldStatus, err := p.ledger.SetStatus(ctx, leadID, contracts.StatusDNC)
	if err != nil {
		return fmt.Errorf("set DNC status for lead %s: %w", leadID, err)
	}

	if p.audit != nil {
		meta := map[string]string{"trigger": "sms_opt_out", "message": truncate(messageBody, 200)}
		p.audit.RecordConsent(ctx, leadID, oldStatus, contracts.StatusDNC, meta)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
