package contracts

import "testing"

func TestLeadStatusClassification(t *testing.T) {
	terminal := []LeadStatus{StatusClosedWon, StatusClosedLost, StatusDNC, StatusDisqualified, StatusArchived}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	active := []LeadStatus{StatusIngested, StatusContacting, StatusNurturing, StatusQualified, StatusAppointmentSet}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}

	protected := []LeadStatus{StatusAppointmentSet, StatusQualified, StatusClosedWon}
	for _, s := range protected {
		if !s.IsProtected() {
			t.Errorf("%s should be protected", s)
		}
	}
	if StatusContacting.IsProtected() {
		t.Error("contacting should not be protected")
	}
}

func TestLeadName(t *testing.T) {
	tests := []struct {
		first, last, want string
	}{
		{"Jane", "Doe", "Jane Doe"},
		{"Jane", "", "Jane"},
		{"", "Doe", "Doe"},
		{"", "", "Homeowner"},
	}
	for _, tt := range tests {
		l := &Lead{FirstName: tt.first, LastName: tt.last}
		if got := l.Name(); got != tt.want {
			t.Errorf("Name(%q, %q) = %q, want %q", tt.first, tt.last, got, tt.want)
		}
	}
}

func TestStatusForDisposition(t *testing.T) {
	tests := []struct {
		d    Disposition
		want LeadStatus
		ok   bool
	}{
		{DispositionAppointmentBooked, StatusQualified, true},
		{DispositionInterestedNotReady, StatusNurturing, true},
		{DispositionNotInterested, StatusClosedLost, true},
		{DispositionNotHomeowner, StatusDisqualified, true},
		{DispositionWrongNumber, StatusDisqualified, true},
		{DispositionVoicemail, StatusContacting, true},
		{DispositionNoAnswer, StatusContacting, true},
		{DispositionCallbackScheduled, StatusContacting, true},
		{DispositionDoNotCall, StatusDNC, true},
		{DispositionCompleted, "", false},
		{DispositionFailed, "", false},
	}
	for _, tt := range tests {
		got, ok := StatusForDisposition(tt.d)
		if got != tt.want || ok != tt.ok {
			t.Errorf("StatusForDisposition(%s) = (%s, %v), want (%s, %v)", tt.d, got, ok, tt.want, tt.ok)
		}
	}
}

func TestConsentCovers(t *testing.T) {
	all := &ConsentRecord{Type: ConsentTypeAllChannels, Channel: ChannelSMS}
	for _, ch := range Channels() {
		if !all.Covers(ch) {
			t.Errorf("all_channels record should cover %s", ch)
		}
	}

	voiceOnly := &ConsentRecord{Type: ConsentTypeVoice, Channel: ChannelVoice}
	if !voiceOnly.Covers(ChannelVoice) {
		t.Error("voice record should cover voice")
	}
	if voiceOnly.Covers(ChannelEmail) {
		t.Error("voice record should not cover email")
	}
}
