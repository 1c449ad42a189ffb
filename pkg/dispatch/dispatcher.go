// Package dispatch executes outreach attempts. EnqueueAttempt is the
// single mutation path from "this lead should be contacted" to a pending
// attempt row; Drain resolves pending attempts against the channel
// provider under a fleet-wide Redis lock.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/solarcommand/outreach/pkg/audit"
	"github.com/solarcommand/outreach/pkg/compliance"
	"github.com/solarcommand/outreach/pkg/contracts"
	"github.com/solarcommand/outreach/pkg/escalation"
	"github.com/solarcommand/outreach/pkg/ledger"
	"github.com/solarcommand/outreach/pkg/provider"
)

// Denial is returned by EnqueueAttempt when the compliance gate blocks
// the contact. A denial is an expected outcome, not an error: callers
// branch on the machine-readable Reason.
type Denial struct {
	LeadID string
	Reason string
	Detail string
}

// ErrDeferred means every eligible channel is outside its contact window
// right now. The lead stays untouched; a later cycle retries.
var ErrDeferred = errors.New("all eligible channels outside contact window")

// Outbox is the fleet-shared work queue. Optional: single-worker
// deployments run fine without one.
type Outbox interface {
	Schedule(ctx context.Context, attempt *contracts.OutreachAttempt) error
	Complete(ctx context.Context, attemptID string) error
}

// Store is the slice of the Contact Ledger the dispatcher mutates.
type Store interface {
	GetLead(ctx context.Context, id string) (*contracts.Lead, error)
	MarkEnqueued(ctx context.Context, leadID string, ch contracts.Channel) error
	CreateAttempt(ctx context.Context, leadID string, ch contracts.Channel) (*contracts.OutreachAttempt, error)
	PendingAttempts(ctx context.Context, limit int) ([]*contracts.OutreachAttempt, error)
	ApplyDisposition(ctx context.Context, attemptID string, d contracts.Disposition, result ledger.AttemptResult) (*ledger.DispositionOutcome, error)
}

// Options tune drain behaviour.
type Options struct {
	// BatchSize bounds one drain scan. Zero means 50.
	BatchSize int
	// RatePerSecond throttles provider calls across the batch. Zero means 5.
	RatePerSecond float64
	// MaxSendTries bounds per-attempt provider retries. Zero means 3.
	MaxSendTries uint
	// LockKey and LockLease configure the drain lock.
	LockKey   string
	LockLease time.Duration
}

func (o *Options) withDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 5
	}
	if o.MaxSendTries == 0 {
		o.MaxSendTries = 3
	}
	if o.LockKey == "" {
		o.LockKey = "lock:outreach_drain"
	}
	if o.LockLease <= 0 {
		o.LockLease = 120 * time.Second
	}
}

// Dispatcher composes the gate, escalation policy, ledger and provider.
type Dispatcher struct {
	store    Store
	gate     *compliance.Gate
	policy   *escalation.Policy
	provider provider.ChannelProvider
	lock     *DrainLock
	outbox   Outbox
	audit    *audit.Recorder
	limiter  *rate.Limiter
	opts     Options
	log      zerolog.Logger
	clock    func() time.Time
}

// New wires a dispatcher. lock may be nil for single-process deployments;
// audit may be nil.
func New(store Store, gate *compliance.Gate, policy *escalation.Policy,
	prov provider.ChannelProvider, lock *DrainLock, rec *audit.Recorder,
	opts Options, log zerolog.Logger) *Dispatcher {
	opts.withDefaults()
	return &Dispatcher{
		store:    store,
		gate:     gate,
		policy:   policy,
		provider: prov,
		lock:     lock,
		audit:    rec,
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		opts:     opts,
		log:      log.With().Str("component", "dispatch").Logger(),
		clock:    time.Now,
	}
}

// WithOutbox attaches the fleet-shared work queue. Attempts are mirrored
// into it on enqueue and marked done after their disposition commits.
func (d *Dispatcher) WithOutbox(outbox Outbox) *Dispatcher {
	d.outbox = outbox
	return d
}

// WithClock overrides the clock for deterministic testing.
func (d *Dispatcher) WithClock(clock func() time.Time) *Dispatcher {
	d.clock = clock
	return d
}

// EnqueueAttempt runs the full pre-contact sequence for a lead: gate
// check, channel selection, pending attempt creation. A gate block comes
// back as a non-nil *Denial; ErrDeferred means no eligible channel is
// currently in window.
func (d *Dispatcher) EnqueueAttempt(ctx context.Context, leadID string) (*contracts.OutreachAttempt, *Denial, error) {
	lead, err := d.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, nil, fmt.Errorf("load lead %s: %w", leadID, err)
	}
	now := d.clock().UTC()

	decision, err := d.gate.CanContact(ctx, lead)
	if err != nil {
		return nil, nil, fmt.Errorf("gate check for lead %s: %w", leadID, err)
	}
	if !decision.Allowed {
		if d.audit != nil {
			d.audit.RecordDenial(ctx, leadID, decision.Reason, decision.Detail)
		}
		return nil, &Denial{LeadID: leadID, Reason: decision.Reason, Detail: decision.Detail}, nil
	}

	ch := d.policy.SelectChannel(lead, now)
	if ch == contracts.ChannelNone {
		return nil, nil, ErrDeferred
	}

	attempt, err := d.store.CreateAttempt(ctx, leadID, ch)
	if err != nil {
		return nil, nil, fmt.Errorf("create attempt for lead %s: %w", leadID, err)
	}
	if err := d.store.MarkEnqueued(ctx, leadID, ch); err != nil {
		return nil, nil, fmt.Errorf("mark lead %s enqueued: %w", leadID, err)
	}
	if d.outbox != nil {
		if err := d.outbox.Schedule(ctx, attempt); err != nil {
			// Local ledger is the source of truth; a missed mirror write
			// only costs visibility on other workers.
			d.log.Warn().Err(err).Str("attempt_id", attempt.ID).Msg("outbox schedule failed")
		}
	}

	d.log.Info().
		Str("lead_id", leadID).
		Str("attempt_id", attempt.ID).
		Str("channel", string(ch)).
		Msg("attempt enqueued")
	return attempt, nil, nil
}

// DrainStats summarizes one drain cycle.
type DrainStats struct {
	Scanned  int
	Resolved int
	Failed   int
	Skipped  bool // lock contention, cycle not run
}

// Drain resolves pending attempts. It takes the fleet lock first; on
// contention the whole cycle is skipped, because another worker is
// already draining the same queue. Each attempt is executed against the
// provider under bounded retry and the shared rate limiter, then closed
// with an idempotent disposition write.
func (d *Dispatcher) Drain(ctx context.Context) (DrainStats, error) {
	var stats DrainStats

	if d.lock != nil {
		release, ok, err := d.lock.Acquire(ctx)
		if err != nil {
			return stats, err
		}
		if !ok {
			stats.Skipped = true
			d.log.Debug().Msg("drain lock held elsewhere, skipping cycle")
			return stats, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				d.log.Warn().Err(err).Msg("drain lock release")
			}
		}()
	}

	attempts, err := d.store.PendingAttempts(ctx, d.opts.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("scan pending attempts: %w", err)
	}
	stats.Scanned = len(attempts)

	for _, attempt := range attempts {
		if err := d.limiter.Wait(ctx); err != nil {
			return stats, err
		}
		if err := d.resolve(ctx, attempt); err != nil {
			stats.Failed++
			d.log.Error().Err(err).
				Str("attempt_id", attempt.ID).
				Str("lead_id", attempt.LeadID).
				Msg("attempt resolution failed")
			continue
		}
		stats.Resolved++
	}

	d.log.Info().
		Int("scanned", stats.Scanned).
		Int("resolved", stats.Resolved).
		Int("failed", stats.Failed).
		Msg("drain cycle complete")
	return stats, nil
}

// resolve executes one attempt against the provider and closes it. A
// provider failure after all retries still closes the attempt, with the
// failed disposition, so it never clogs the pending scan forever.
func (d *Dispatcher) resolve(ctx context.Context, attempt *contracts.OutreachAttempt) error {
	lead, err := d.store.GetLead(ctx, attempt.LeadID)
	if err != nil {
		return fmt.Errorf("load lead %s: %w", attempt.LeadID, err)
	}

	result, sendErr := d.send(ctx, lead, attempt)

	var disposition contracts.Disposition
	res := ledger.AttemptResult{EndedAt: d.clock().UTC()}
	if sendErr != nil {
		disposition = contracts.DispositionFailed
		res.MessageBody = sendErr.Error()
	} else {
		disposition = result.Disposition
		if disposition == contracts.DispositionNone {
			disposition = contracts.DispositionCompleted
		}
		res.ExternalID = result.ExternalID
		res.DurationSeconds = result.DurationSeconds
		res.MessageBody = result.Body
	}

	outcome, err := d.store.ApplyDisposition(ctx, attempt.ID, disposition, res)
	if err != nil {
		return fmt.Errorf("apply disposition %s: %w", disposition, err)
	}

	attempt.Disposition = disposition
	if d.outbox != nil {
		if err := d.outbox.Complete(ctx, attempt.ID); err != nil {
			d.log.Warn().Err(err).Str("attempt_id", attempt.ID).Msg("outbox complete failed")
		}
	}
	if d.audit != nil {
		status := "resolved"
		if sendErr != nil {
			status = "failed"
		}
		d.audit.RecordAttempt(ctx, attempt, status)
		if outcome.Applied && outcome.OldStatus != outcome.NewStatus {
			d.audit.RecordTransition(ctx, attempt.LeadID, outcome.OldStatus, outcome.NewStatus, "disposition."+string(disposition))
		}
		if outcome.ProtectedGuardHit {
			d.audit.RecordAnomaly(ctx, "lead", attempt.LeadID,
				fmt.Sprintf("disposition %s status mapping suppressed: lead is %s", disposition, outcome.OldStatus))
		}
	}
	return nil
}

// send routes the attempt to the right provider method under bounded
// exponential retry.
func (d *Dispatcher) send(ctx context.Context, lead *contracts.Lead, attempt *contracts.OutreachAttempt) (*provider.Result, error) {
	operation := func() (*provider.Result, error) {
		switch attempt.Channel {
		case contracts.ChannelVoice:
			return d.provider.PlaceCall(ctx, provider.CallRequest{To: lead.Phone})
		case contracts.ChannelSMS:
			return d.provider.SendMessage(ctx, provider.MessageRequest{To: lead.Phone, Body: smsBody(lead)})
		case contracts.ChannelEmail:
			return d.provider.SendEmail(ctx, provider.MessageRequest{
				To:      lead.Email,
				Subject: "Your solar savings estimate",
				Body:    emailBody(lead),
			})
		default:
			return nil, backoff.Permanent(fmt.Errorf("unknown channel %q", attempt.Channel))
		}
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(d.opts.MaxSendTries))
}

func smsBody(lead *contracts.Lead) string {
	return fmt.Sprintf("Hi %s, following up on your solar inquiry. Reply STOP to opt out.", lead.Name())
}

func emailBody(lead *contracts.Lead) string {
	return fmt.Sprintf("Hi %s,\n\nThanks for your interest in going solar. "+
		"Reply to this email or give us a call to schedule your free consultation.\n", lead.Name())
}
