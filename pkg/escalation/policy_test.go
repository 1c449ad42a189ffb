package escalation

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solarcommand/outreach/pkg/config"
	"github.com/solarcommand/outreach/pkg/contracts"
)

// Tuesday 2026-03-03 17:00 UTC = 12:00 local: every window open.
var midday = time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC)

// Tuesday 2026-03-03 08:00 UTC = 03:00 local: voice and SMS closed,
// email unrestricted.
var nighttime = time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)

func lead(calls, sms, emails int) *contracts.Lead {
	return &contracts.Lead{
		ID:           "lead-1",
		Status:       contracts.StatusContacting,
		CallAttempts: calls,
		SMSSent:      sms,
		EmailSent:    emails,
	}
}

func TestSelectChannelEscalationOrder(t *testing.T) {
	p := NewPolicy(nil)

	tests := []struct {
		name string
		lead *contracts.Lead
		now  time.Time
		want contracts.Channel
	}{
		{"fresh lead gets voice", lead(0, 0, 0), midday, contracts.ChannelVoice},
		{"voice under cap keeps voice", lead(2, 0, 0), midday, contracts.ChannelVoice},
		{"voice exhausted falls to sms", lead(3, 0, 0), midday, contracts.ChannelSMS},
		{"voice and sms exhausted falls to email", lead(3, 3, 0), midday, contracts.ChannelEmail},
		{"all exhausted yields none", lead(3, 3, 5), midday, contracts.ChannelNone},
		{"email tier survives partial email use", lead(3, 3, 4), midday, contracts.ChannelEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.SelectChannel(tt.lead, tt.now); got != tt.want {
				t.Errorf("SelectChannel = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSelectChannelDefersOutsideWindows(t *testing.T) {
	p := NewPolicy(nil)

	// Voice eligible but closed at night, SMS also closed: defer rather
	// than skipping ahead to email.
	if got := p.SelectChannel(lead(0, 0, 0), nighttime); got != contracts.ChannelNone {
		t.Errorf("voice-eligible lead at night should defer, got %s", got)
	}

	// SMS tier closed at night: defer.
	if got := p.SelectChannel(lead(3, 0, 0), nighttime); got != contracts.ChannelNone {
		t.Errorf("sms-eligible lead at night should defer, got %s", got)
	}

	// Email tier is unrestricted, so night is fine.
	if got := p.SelectChannel(lead(3, 3, 0), nighttime); got != contracts.ChannelEmail {
		t.Errorf("email-eligible lead at night should get email, got %s", got)
	}
}

func TestSelectChannelVoiceClosedFallsToOpenSMS(t *testing.T) {
	// A profile where SMS stays open an hour later than voice: at 20:30
	// local, voice is eligible but closed while SMS is open, so the
	// policy drops one tier instead of deferring.
	profile := config.DefaultProfile()
	p := NewPolicy(profile)

	// Tuesday 2026-03-04 01:30 UTC = Tuesday 20:30 local.
	evening := time.Date(2026, 3, 4, 1, 30, 0, 0, time.UTC)
	if got := p.SelectChannel(lead(0, 0, 0), evening); got != contracts.ChannelSMS {
		t.Errorf("voice closed with sms open should yield sms, got %s", got)
	}
}

func TestSelectChannelDeterministic(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)
	p := NewPolicy(nil)

	properties.Property("same inputs always produce the same channel", prop.ForAll(
		func(calls, sms, emails, hourOffset int) bool {
			l := lead(calls, sms, emails)
			now := midday.Add(time.Duration(hourOffset) * time.Hour)
			first := p.SelectChannel(l, now)
			for i := 0; i < 5; i++ {
				if p.SelectChannel(l, now) != first {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 5), gen.IntRange(0, 5), gen.IntRange(0, 7), gen.IntRange(0, 24*14),
	))

	properties.Property("selected channel is never over its cap", prop.ForAll(
		func(calls, sms, emails, hourOffset int) bool {
			l := lead(calls, sms, emails)
			now := midday.Add(time.Duration(hourOffset) * time.Hour)
			caps := config.DefaultProfile().Caps
			switch p.SelectChannel(l, now) {
			case contracts.ChannelVoice:
				return calls < caps.Voice
			case contracts.ChannelSMS:
				return sms < caps.SMS
			case contracts.ChannelEmail:
				return emails < caps.Email
			}
			return true
		},
		gen.IntRange(0, 5), gen.IntRange(0, 5), gen.IntRange(0, 7), gen.IntRange(0, 24*14),
	))

	properties.TestingRun(t)
}
