package compliance

import (
	"testing"
	"time"

	"github.com/solarcommand/outreach/pkg/config"
	"github.com/solarcommand/outreach/pkg/contracts"
)

// All instants below are UTC; the default profile is UTC-5, so local time
// is five hours earlier.
func utc(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func TestInWindowWeekday(t *testing.T) {
	p := config.DefaultProfile()

	// Tuesday 2026-03-03 14:00 UTC = 09:00 local, voice window opens.
	if !InWindow(p, contracts.ChannelVoice, utc(2026, 3, 3, 14)) {
		t.Error("voice should be open at 09:00 local")
	}
	// 13:00 UTC = 08:00 local, before the window.
	if InWindow(p, contracts.ChannelVoice, utc(2026, 3, 3, 13)) {
		t.Error("voice should be closed at 08:00 local")
	}
	// 01:00 UTC Wed = 20:00 local Tue, window end is exclusive.
	if InWindow(p, contracts.ChannelVoice, utc(2026, 3, 4, 1)) {
		t.Error("voice should be closed at 20:00 local")
	}
	// SMS runs one hour later: 20:00 local still open.
	if !InWindow(p, contracts.ChannelSMS, utc(2026, 3, 4, 1)) {
		t.Error("sms should be open at 20:00 local")
	}
}

func TestInWindowSundayBlocksAllChannels(t *testing.T) {
	p := config.DefaultProfile()

	// Sunday 2026-03-08 17:00 UTC = 12:00 local.
	sunday := utc(2026, 3, 8, 17)
	for _, ch := range contracts.Channels() {
		if InWindow(p, ch, sunday) {
			t.Errorf("%s should be closed on the rest day", ch)
		}
	}
}

func TestInWindowSaturdayReducedHours(t *testing.T) {
	p := config.DefaultProfile()

	// Saturday 2026-03-07 14:00 UTC = 09:00 local: weekday window would
	// be open, Saturday window (10-17) is not.
	if InWindow(p, contracts.ChannelVoice, utc(2026, 3, 7, 14)) {
		t.Error("voice should be closed Saturday 09:00 local")
	}
	// 15:00 UTC = 10:00 local.
	if !InWindow(p, contracts.ChannelVoice, utc(2026, 3, 7, 15)) {
		t.Error("voice should be open Saturday 10:00 local")
	}
	// 22:00 UTC = 17:00 local, exclusive end.
	if InWindow(p, contracts.ChannelVoice, utc(2026, 3, 7, 22)) {
		t.Error("voice should be closed Saturday 17:00 local")
	}
}

func TestInWindowEmailUnrestricted(t *testing.T) {
	p := config.DefaultProfile()

	// Tuesday 08:00 UTC = 03:00 local: middle of the night, email fine.
	if !InWindow(p, contracts.ChannelEmail, utc(2026, 3, 3, 8)) {
		t.Error("email should be unrestricted on weekdays")
	}
}

func TestInWindowUnknownChannel(t *testing.T) {
	p := config.DefaultProfile()
	if InWindow(p, contracts.ChannelNone, utc(2026, 3, 3, 14)) {
		t.Error("unknown channel should never be in window")
	}
}
