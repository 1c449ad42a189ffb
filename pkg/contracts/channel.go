package contracts

// Channel is an outreach contact channel.
type Channel string

// Contact channel constants, in escalation order.
const (
	ChannelVoice Channel = "voice"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// ChannelNone is the zero value: no channel selected.
const ChannelNone Channel = ""

// Channels lists all contact channels in escalation order.
func Channels() []Channel {
	return []Channel{ChannelVoice, ChannelSMS, ChannelEmail}
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelVoice, ChannelSMS, ChannelEmail:
		return true
	}
	return false
}
