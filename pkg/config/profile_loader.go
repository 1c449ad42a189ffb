package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// JurisdictionProfile carries the legally-binding outreach parameters for
// one jurisdiction: per-channel contact windows, attempt caps, and the
// designated rest day. Windows are expressed in local hours against a
// fixed UTC offset — conservative, DST is deliberately ignored.
type JurisdictionProfile struct {
	Name      string        `yaml:"name" json:"name"`
	Code      string        `yaml:"code" json:"code"`
	UTCOffset int           `yaml:"utc_offset" json:"utc_offset"`
	RestDay   string        `yaml:"rest_day" json:"rest_day"` // weekday with no contact at all
	Voice     ChannelWindow `yaml:"voice" json:"voice"`
	SMS       ChannelWindow `yaml:"sms" json:"sms"`
	Email     ChannelWindow `yaml:"email" json:"email"`
	Caps      ChannelCaps   `yaml:"caps" json:"caps"`
}

// ChannelWindow is the permitted local-hour range for one channel.
// StartHour is inclusive, EndHour exclusive. Saturday has its own
// reduced range when SaturdayStart/SaturdayEnd are set.
type ChannelWindow struct {
	StartHour     int  `yaml:"start_hour" json:"start_hour"`
	EndHour       int  `yaml:"end_hour" json:"end_hour"`
	SaturdayStart int  `yaml:"saturday_start,omitempty" json:"saturday_start,omitempty"`
	SaturdayEnd   int  `yaml:"saturday_end,omitempty" json:"saturday_end,omitempty"`
	Unrestricted  bool `yaml:"unrestricted,omitempty" json:"unrestricted,omitempty"`
}

// ChannelCaps holds per-channel lifetime attempt caps.
type ChannelCaps struct {
	Voice int `yaml:"voice" json:"voice"`
	SMS   int `yaml:"sms" json:"sms"`
	Email int `yaml:"email" json:"email"`
}

// DefaultProfile returns the built-in conservative profile: Eastern Time,
// voice 09-20 (Sat 10-17), SMS 09-21 (Sat 10-17), email unrestricted,
// Sunday rest day, caps 3/3/5.
func DefaultProfile() *JurisdictionProfile {
	return &JurisdictionProfile{
		Name:      "Default (Eastern)",
		Code:      "default",
		UTCOffset: -5,
		RestDay:   "Sunday",
		Voice:     ChannelWindow{StartHour: 9, EndHour: 20, SaturdayStart: 10, SaturdayEnd: 17},
		SMS:       ChannelWindow{StartHour: 9, EndHour: 21, SaturdayStart: 10, SaturdayEnd: 17},
		Email:     ChannelWindow{Unrestricted: true},
		Caps:      ChannelCaps{Voice: 3, SMS: 3, Email: 5},
	}
}

// LoadProfile loads a jurisdiction profile YAML by code, searching dir for
// profile_<code>.yaml. Missing fields fall back to the default profile.
func LoadProfile(dir, code string) (*JurisdictionProfile, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || code == "default" {
		return DefaultProfile(), nil
	}

	path := filepath.Join(dir, fmt.Sprintf("profile_%s.yaml", code))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load jurisdiction profile %q: %w", code, err)
	}

	profile := DefaultProfile()
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parse jurisdiction profile %q: %w", code, err)
	}
	profile.Code = code

	if err := validateProfile(profile); err != nil {
		return nil, fmt.Errorf("invalid jurisdiction profile %q: %w", code, err)
	}
	return profile, nil
}

func validateProfile(p *JurisdictionProfile) error {
	for _, w := range []struct {
		name string
		win  ChannelWindow
	}{{"voice", p.Voice}, {"sms", p.SMS}, {"email", p.Email}} {
		if w.win.Unrestricted {
			continue
		}
		if w.win.StartHour < 0 || w.win.EndHour > 24 || w.win.StartHour >= w.win.EndHour {
			return fmt.Errorf("%s window %d-%d out of range", w.name, w.win.StartHour, w.win.EndHour)
		}
	}
	if p.Caps.Voice <= 0 || p.Caps.SMS <= 0 || p.Caps.Email <= 0 {
		return fmt.Errorf("caps must be positive")
	}
	if p.UTCOffset < -12 || p.UTCOffset > 14 {
		return fmt.Errorf("utc_offset %d out of range", p.UTCOffset)
	}
	return nil
}
