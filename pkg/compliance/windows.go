// Package compliance implements the pre-contact legal checks: consent,
// lead status, attempt caps, and per-channel contact windows.
//
// Denials are normal control-flow outcomes carrying a machine-readable
// reason code; they are never errors.
package compliance

import (
	"time"

	"github.com/solarcommand/outreach/pkg/config"
	"github.com/solarcommand/outreach/pkg/contracts"
)

// InWindow reports whether now falls inside the channel's allowed contact
// window for the given jurisdiction profile.
//
// Local time is derived from the profile's fixed UTC offset. DST is
// deliberately ignored: the fixed standard-time offset is the
// conservative choice for a legal window.
func InWindow(p *config.JurisdictionProfile, ch contracts.Channel, now time.Time) bool {
	win, ok := windowFor(p, ch)
	if !ok {
		return false
	}
	local := now.UTC().Add(time.Duration(p.UTCOffset) * time.Hour)
	// The rest day blocks every channel, unrestricted ones included.
	if local.Weekday().String() == p.RestDay {
		return false
	}
	if win.Unrestricted {
		return true
	}

	start, end := win.StartHour, win.EndHour
	if local.Weekday() == time.Saturday && win.SaturdayEnd > win.SaturdayStart {
		start, end = win.SaturdayStart, win.SaturdayEnd
	}
	return local.Hour() >= start && local.Hour() < end
}

func windowFor(p *config.JurisdictionProfile, ch contracts.Channel) (config.ChannelWindow, bool) {
	switch ch {
	case contracts.ChannelVoice:
		return p.Voice, true
	case contracts.ChannelSMS:
		return p.SMS, true
	case contracts.ChannelEmail:
		return p.Email, true
	}
	return config.ChannelWindow{}, false
}
