package provider

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/solarcommand/outreach/pkg/contracts"
)

// SimulatedProvider assigns weighted-random dispositions without any
// network I/O. Used in development and to exercise the full pipeline in
// tests; seed it for reproducible runs.
type SimulatedProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedProvider creates a provider with the given seed.
func NewSimulatedProvider(seed int64) *SimulatedProvider {
	return &SimulatedProvider{rng: rand.New(rand.NewSource(seed))}
}

// Weighted voice outcomes, roughly matching observed call statistics.
var voiceOutcomes = []struct {
	disposition contracts.Disposition
	weight      float64
}{
	{contracts.DispositionAppointmentBooked, 0.15},
	{contracts.DispositionInterestedNotReady, 0.10},
	{contracts.DispositionNotInterested, 0.15},
	{contracts.DispositionNoAnswer, 0.35},
	{contracts.DispositionVoicemail, 0.20},
	{contracts.DispositionWrongNumber, 0.05},
}

// PlaceCall simulates a voice call.
func (p *SimulatedProvider) PlaceCall(ctx context.Context, req CallRequest) (*Result, error) {
	_ = ctx
	p.mu.Lock()
	roll := p.rng.Float64()
	duration := 5 + p.rng.Intn(176)
	p.mu.Unlock()

	chosen := contracts.DispositionNoAnswer
	cumulative := 0.0
	for _, o := range voiceOutcomes {
		cumulative += o.weight
		if roll <= cumulative {
			chosen = o.disposition
			break
		}
	}
	if chosen == contracts.DispositionNoAnswer {
		duration = 0
	}

	return &Result{
		ExternalID:      "sim-" + uuid.New().String(),
		Status:          "completed",
		Disposition:     chosen,
		DurationSeconds: duration,
		Body:            fmt.Sprintf("[SIMULATED] disposition: %s", chosen),
	}, nil
}

// SendMessage simulates an SMS send.
func (p *SimulatedProvider) SendMessage(ctx context.Context, req MessageRequest) (*Result, error) {
	_ = ctx
	return &Result{
		ExternalID:  "sim-" + uuid.New().String(),
		Status:      "sent",
		Disposition: contracts.DispositionCompleted,
		Body:        "[SIMULATED] SMS sent",
	}, nil
}

// SendEmail simulates an email send.
func (p *SimulatedProvider) SendEmail(ctx context.Context, req MessageRequest) (*Result, error) {
	_ = ctx
	return &Result{
		ExternalID:  "sim-" + uuid.New().String(),
		Status:      "sent",
		Disposition: contracts.DispositionCompleted,
		Body:        "[SIMULATED] email sent",
	}, nil
}
