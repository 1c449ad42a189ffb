// Package provider abstracts the external voice/SMS/email channel
// providers. The engine treats every channel as fire-and-acknowledge:
// the provider returns a correlation id immediately and richer status
// arrives later through inbound processing.
package provider

import (
	"context"

	"github.com/solarcommand/outreach/pkg/contracts"
)

// Result is the provider's acknowledgement of one dispatch.
type Result struct {
	// ExternalID correlates later provider callbacks with the attempt.
	ExternalID string
	// Status is the provider's raw acknowledgement status.
	Status string
	// Disposition is set when the provider can already report a terminal
	// outcome (simulated calls, synchronous sends). Empty means the
	// dispatcher records the generic completed disposition.
	Disposition contracts.Disposition
	// DurationSeconds and Body carry channel-specific detail.
	DurationSeconds int
	Body            string
}

// CallRequest describes an outbound voice call.
type CallRequest struct {
	To     string
	From   string
	Script string
}

// MessageRequest describes an outbound SMS or email.
type MessageRequest struct {
	To      string
	From    string
	Subject string
	Body    string
}

// ChannelProvider places calls and sends messages. Implementations must
// be safe for concurrent use.
type ChannelProvider interface {
	PlaceCall(ctx context.Context, req CallRequest) (*Result, error)
	SendMessage(ctx context.Context, req MessageRequest) (*Result, error)
	SendEmail(ctx context.Context, req MessageRequest) (*Result, error)
}
