package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarcommand/outreach/pkg/audit"
	"github.com/solarcommand/outreach/pkg/compliance"
	"github.com/solarcommand/outreach/pkg/contracts"
	"github.com/solarcommand/outreach/pkg/escalation"
	"github.com/solarcommand/outreach/pkg/ledger"
	"github.com/solarcommand/outreach/pkg/provider"
)

// Tuesday 2026-03-03 17:00 UTC = 12:00 local under the default profile.
var midday = time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC)

type fakeStore struct {
	leads        map[string]*contracts.Lead
	attempts     map[string]*contracts.OutreachAttempt
	dispositions map[string]contracts.Disposition
	enqueued     []string
}

func newFakeStore(leads ...*contracts.Lead) *fakeStore {
	s := &fakeStore{
		leads:        make(map[string]*contracts.Lead),
		attempts:     make(map[string]*contracts.OutreachAttempt),
		dispositions: make(map[string]contracts.Disposition),
	}
	for _, l := range leads {
		s.leads[l.ID] = l
	}
	return s
}

func (s *fakeStore) GetLead(ctx context.Context, id string) (*contracts.Lead, error) {
	lead, ok := s.leads[id]
	if !ok {
		return nil, ledger.ErrLeadNotFound
	}
	return lead, nil
}

func (s *fakeStore) LatestConsent(ctx context.Context, leadID string, ch contracts.Channel) (*contracts.ConsentRecord, error) {
	return nil, nil
}

func (s *fakeStore) MarkEnqueued(ctx context.Context, leadID string, ch contracts.Channel) error {
	s.enqueued = append(s.enqueued, leadID)
	s.leads[leadID].Status = contracts.StatusContacting
	return nil
}

func (s *fakeStore) CreateAttempt(ctx context.Context, leadID string, ch contracts.Channel) (*contracts.OutreachAttempt, error) {
	a := &contracts.OutreachAttempt{
		ID:        "attempt-" + leadID,
		LeadID:    leadID,
		Channel:   ch,
		StartedAt: midday,
	}
	s.attempts[a.ID] = a
	return a, nil
}

func (s *fakeStore) PendingAttempts(ctx context.Context, limit int) ([]*contracts.OutreachAttempt, error) {
	var pending []*contracts.OutreachAttempt
	for _, a := range s.attempts {
		if s.dispositions[a.ID] == contracts.DispositionNone {
			pending = append(pending, a)
		}
		if len(pending) >= limit {
			break
		}
	}
	return pending, nil
}

func (s *fakeStore) ApplyDisposition(ctx context.Context, attemptID string, d contracts.Disposition, result ledger.AttemptResult) (*ledger.DispositionOutcome, error) {
	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, ledger.ErrAttemptNotFound
	}
	old := s.leads[a.LeadID].Status
	if s.dispositions[attemptID] != contracts.DispositionNone {
		return &ledger.DispositionOutcome{Applied: false, OldStatus: old, NewStatus: old}, nil
	}
	s.dispositions[attemptID] = d
	outcome := &ledger.DispositionOutcome{Applied: true, OldStatus: old, NewStatus: old}
	if next, ok := contracts.StatusForDisposition(d); ok && next != old {
		s.leads[a.LeadID].Status = next
		outcome.NewStatus = next
	}
	return outcome, nil
}

type scriptedProvider struct {
	disposition contracts.Disposition
	err         error
	calls       int
}

func (p *scriptedProvider) PlaceCall(ctx context.Context, req provider.CallRequest) (*provider.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &provider.Result{ExternalID: "ext-1", Status: "completed", Disposition: p.disposition}, nil
}

func (p *scriptedProvider) SendMessage(ctx context.Context, req provider.MessageRequest) (*provider.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &provider.Result{ExternalID: "ext-1", Status: "sent"}, nil
}

func (p *scriptedProvider) SendEmail(ctx context.Context, req provider.MessageRequest) (*provider.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &provider.Result{ExternalID: "ext-1", Status: "sent"}, nil
}

type fakeOutbox struct {
	scheduled []string
	completed []string
}

func (o *fakeOutbox) Schedule(ctx context.Context, attempt *contracts.OutreachAttempt) error {
	o.scheduled = append(o.scheduled, attempt.ID)
	return nil
}

func (o *fakeOutbox) Complete(ctx context.Context, attemptID string) error {
	o.completed = append(o.completed, attemptID)
	return nil
}

func newTestDispatcher(store *fakeStore, prov provider.ChannelProvider, trail *audit.Trail) *Dispatcher {
	gate := compliance.NewGate(store, nil)
	policy := escalation.NewPolicy(nil)
	var rec *audit.Recorder
	if trail != nil {
		rec = audit.NewRecorder(trail, zerolog.Nop())
	}
	d := New(store, gate, policy, prov, nil, rec, Options{RatePerSecond: 1000, MaxSendTries: 1}, zerolog.Nop())
	return d.WithClock(func() time.Time { return midday })
}

func TestEnqueueAttemptHappyPath(t *testing.T) {
	store := newFakeStore(&contracts.Lead{ID: "lead-1", Status: contracts.StatusIngested})
	d := newTestDispatcher(store, &scriptedProvider{}, nil)

	attempt, denial, err := d.EnqueueAttempt(context.Background(), "lead-1")
	require.NoError(t, err)
	require.Nil(t, denial)
	require.NotNil(t, attempt)

	assert.Equal(t, contracts.ChannelVoice, attempt.Channel)
	assert.Equal(t, []string{"lead-1"}, store.enqueued)
	assert.Equal(t, contracts.StatusContacting, store.leads["lead-1"].Status)
}

func TestEnqueueAttemptDeniedIsAudited(t *testing.T) {
	store := newFakeStore(&contracts.Lead{ID: "lead-1", Status: contracts.StatusDNC})
	trail := audit.NewTrail()
	d := newTestDispatcher(store, &scriptedProvider{}, trail)

	attempt, denial, err := d.EnqueueAttempt(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Nil(t, attempt)
	require.NotNil(t, denial)
	assert.Equal(t, compliance.ReasonTerminal, denial.Reason)

	denials := trail.Query(audit.QueryFilter{EntryType: audit.EntryComplianceDenial})
	require.Len(t, denials, 1)
	assert.Equal(t, "lead-1", denials[0].EntityID)
}

func TestEnqueueAttemptDefersOutsideWindows(t *testing.T) {
	store := newFakeStore(&contracts.Lead{ID: "lead-1", Status: contracts.StatusContacting})
	d := newTestDispatcher(store, &scriptedProvider{}, nil)
	// Tuesday 08:00 UTC = 03:00 local: voice and SMS closed.
	d.WithClock(func() time.Time { return time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC) })

	_, denial, err := d.EnqueueAttempt(context.Background(), "lead-1")
	assert.Nil(t, denial)
	assert.ErrorIs(t, err, ErrDeferred)
	assert.Empty(t, store.attempts)
}

func TestDrainResolvesPendingAttempts(t *testing.T) {
	store := newFakeStore(&contracts.Lead{ID: "lead-1", Status: contracts.StatusContacting})
	prov := &scriptedProvider{disposition: contracts.DispositionNotInterested}
	trail := audit.NewTrail()
	d := newTestDispatcher(store, prov, trail)

	_, _, err := d.EnqueueAttempt(context.Background(), "lead-1")
	require.NoError(t, err)

	stats, err := d.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Scanned)
	assert.Equal(t, 1, stats.Resolved)
	assert.Zero(t, stats.Failed)

	assert.Equal(t, contracts.DispositionNotInterested, store.dispositions["attempt-lead-1"])
	assert.Equal(t, contracts.StatusClosedLost, store.leads["lead-1"].Status)

	attempts := trail.Query(audit.QueryFilter{EntryType: audit.EntryAttempt})
	require.Len(t, attempts, 1)
	transitions := trail.Query(audit.QueryFilter{EntryType: audit.EntryStatusTransition})
	require.Len(t, transitions, 1)
	assert.Equal(t, "contacting", transitions[0].OldValue)
	assert.Equal(t, "closed_lost", transitions[0].NewValue)
}

func TestDrainEmptyDispositionDefaultsToCompleted(t *testing.T) {
	store := newFakeStore(&contracts.Lead{ID: "lead-1", Status: contracts.StatusContacting})
	d := newTestDispatcher(store, &scriptedProvider{}, nil)

	_, _, err := d.EnqueueAttempt(context.Background(), "lead-1")
	require.NoError(t, err)

	_, err = d.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, contracts.DispositionCompleted, store.dispositions["attempt-lead-1"])
}

func TestDrainProviderFailureWritesFailedDisposition(t *testing.T) {
	store := newFakeStore(&contracts.Lead{ID: "lead-1", Status: contracts.StatusContacting})
	prov := &scriptedProvider{err: errors.New("carrier unreachable")}
	d := newTestDispatcher(store, prov, nil)

	_, _, err := d.EnqueueAttempt(context.Background(), "lead-1")
	require.NoError(t, err)

	stats, err := d.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Resolved, "failed sends still close the attempt")

	// The attempt never clogs the pending scan again.
	assert.Equal(t, contracts.DispositionFailed, store.dispositions["attempt-lead-1"])
	pending, err := store.PendingAttempts(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDrainOutboxLifecycle(t *testing.T) {
	store := newFakeStore(&contracts.Lead{ID: "lead-1", Status: contracts.StatusContacting})
	outbox := &fakeOutbox{}
	d := newTestDispatcher(store, &scriptedProvider{}, nil).WithOutbox(outbox)

	_, _, err := d.EnqueueAttempt(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"attempt-lead-1"}, outbox.scheduled)

	_, err = d.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"attempt-lead-1"}, outbox.completed)
}

func TestDrainWithoutLockRunsCycle(t *testing.T) {
	store := newFakeStore()
	d := newTestDispatcher(store, &scriptedProvider{}, nil)

	stats, err := d.Drain(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.Skipped)
	assert.Zero(t, stats.Scanned)
}
