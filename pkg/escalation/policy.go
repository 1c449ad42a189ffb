// Package escalation implements the channel escalation policy: the
// deterministic, total function that picks the next eligible outreach
// channel for a lead at a given instant.
//
// Escalation order is fixed: voice, then SMS, then email. The policy
// never skips ahead out of a still-eligible tier purely because its
// window is closed; in that case it defers (returns no channel) unless
// the next tier is itself eligible and open.
package escalation

import (
	"time"

	"github.com/solarcommand/outreach/pkg/compliance"
	"github.com/solarcommand/outreach/pkg/config"
	"github.com/solarcommand/outreach/pkg/contracts"
)

// Policy selects channels under a jurisdiction profile.
type Policy struct {
	profile *config.JurisdictionProfile
}

// NewPolicy creates a policy for the given profile.
func NewPolicy(profile *config.JurisdictionProfile) *Policy {
	if profile == nil {
		profile = config.DefaultProfile()
	}
	return &Policy{profile: profile}
}

// SelectChannel returns the next channel to use for the lead at now, or
// ChannelNone to defer (eligible tier out of window) or stop (all caps
// exhausted). Same inputs always produce the same output.
func (p *Policy) SelectChannel(lead *contracts.Lead, now time.Time) contracts.Channel {
	caps := p.profile.Caps

	if lead.CallAttempts < caps.Voice {
		if compliance.InWindow(p.profile, contracts.ChannelVoice, now) {
			return contracts.ChannelVoice
		}
		// Voice still eligible but closed: fall to SMS only when SMS is
		// both eligible and open, otherwise defer until a window opens.
		if lead.SMSSent < caps.SMS && compliance.InWindow(p.profile, contracts.ChannelSMS, now) {
			return contracts.ChannelSMS
		}
		return contracts.ChannelNone
	}

	if lead.SMSSent < caps.SMS {
		if compliance.InWindow(p.profile, contracts.ChannelSMS, now) {
			return contracts.ChannelSMS
		}
		return contracts.ChannelNone
	}

	if lead.EmailSent < caps.Email {
		if compliance.InWindow(p.profile, contracts.ChannelEmail, now) {
			return contracts.ChannelEmail
		}
		return contracts.ChannelNone
	}

	return contracts.ChannelNone
}
