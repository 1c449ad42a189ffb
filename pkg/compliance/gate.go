package compliance

import (
	"context"
	"fmt"

	"github.com/solarcommand/outreach/pkg/config"
	"github.com/solarcommand/outreach/pkg/contracts"
)

// Reason codes for gate decisions. Consumers (dispatcher, NBA engine,
// observability) branch on these, never on the human-readable detail.
const (
	ReasonOK            = "ok"
	ReasonOptedOut      = "opted_out"
	ReasonTerminal      = "terminal_status"
	ReasonExhaustedCaps = "exhausted_caps"
)

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Detail  string `json:"detail,omitempty"`
}

// ConsentSource provides read access to the append-only consent ledger.
// The gate never originates consent decisions; it only consumes the most
// recent record per channel.
type ConsentSource interface {
	// LatestConsent returns the most recent consent record covering the
	// channel, or nil if none exists.
	LatestConsent(ctx context.Context, leadID string, ch contracts.Channel) (*contracts.ConsentRecord, error)
}

// Gate runs the ordered pre-contact checks. It is read-only: a deny is a
// value, not a side effect, and callers decide what to record.
type Gate struct {
	consents ConsentSource
	profile  *config.JurisdictionProfile
}

// NewGate creates a gate over the given consent source and profile.
func NewGate(consents ConsentSource, profile *config.JurisdictionProfile) *Gate {
	if profile == nil {
		profile = config.DefaultProfile()
	}
	return &Gate{consents: consents, profile: profile}
}

// Profile returns the jurisdiction profile the gate enforces.
func (g *Gate) Profile() *config.JurisdictionProfile { return g.profile }

// CanContact runs all pre-contact checks in order, short-circuiting on the
// first failure: active opt-out, terminal status, exhausted caps.
func (g *Gate) CanContact(ctx context.Context, lead *contracts.Lead) (Decision, error) {
	optedOut, ch, err := g.activeOptOut(ctx, lead.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("consent lookup for lead %s: %w", lead.ID, err)
	}
	if optedOut {
		return Decision{
			Allowed: false,
			Reason:  ReasonOptedOut,
			Detail:  fmt.Sprintf("active opt-out on channel %s", ch),
		}, nil
	}

	if lead.Status.IsTerminal() {
		return Decision{
			Allowed: false,
			Reason:  ReasonTerminal,
			Detail:  fmt.Sprintf("lead status is %s", lead.Status),
		}, nil
	}

	caps := g.profile.Caps
	if lead.CallAttempts >= caps.Voice && lead.SMSSent >= caps.SMS && lead.EmailSent >= caps.Email {
		return Decision{
			Allowed: false,
			Reason:  ReasonExhaustedCaps,
			Detail:  "all channel attempt limits exhausted",
		}, nil
	}

	return Decision{Allowed: true, Reason: ReasonOK}, nil
}

// HasActiveOptOut reports whether any channel's most recent consent record
// is an opt-out. Exposed for the NBA engine's deterministic branch.
func (g *Gate) HasActiveOptOut(ctx context.Context, leadID string) (bool, error) {
	out, _, err := g.activeOptOut(ctx, leadID)
	return out, err
}

// activeOptOut applies last-write-wins per channel: the lead is blocked if
// the newest record covering any channel is opted_out or revoked. A later
// opted_in record on the same channel re-opens it.
func (g *Gate) activeOptOut(ctx context.Context, leadID string) (bool, contracts.Channel, error) {
	for _, ch := range contracts.Channels() {
		rec, err := g.consents.LatestConsent(ctx, leadID, ch)
		if err != nil {
			return false, ch, err
		}
		if rec == nil {
			continue
		}
		if rec.Status == contracts.ConsentOptedOut || rec.Status == contracts.ConsentRevoked {
			return true, ch, nil
		}
	}
	return false, contracts.ChannelNone, nil
}
