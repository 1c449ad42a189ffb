package nba

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/solarcommand/outreach/pkg/config"
	"github.com/solarcommand/outreach/pkg/contracts"
	"github.com/solarcommand/outreach/pkg/llm"
)

// Decision lifetimes. Terminal and opt-out closes are effectively final,
// so they get a long expiry; everything else is recomputed daily.
const (
	decisionTTL = 24 * time.Hour
	terminalTTL = 30 * 24 * time.Hour
)

// LeadSource provides the read-only lead snapshot.
type LeadSource interface {
	GetLead(ctx context.Context, id string) (*contracts.Lead, error)
}

// OptOutChecker is the slice of the compliance gate the engine needs for
// its deterministic branch.
type OptOutChecker interface {
	HasActiveOptOut(ctx context.Context, leadID string) (bool, error)
}

// CallRecorder receives the audit entry for each external reasoning call.
type CallRecorder interface {
	RecordReasoningCall(ctx context.Context, leadID string, payload any, meta map[string]string)
}

// Engine computes next-best-action decisions.
type Engine struct {
	leads         LeadSource
	optOuts       OptOutChecker
	client        llm.Client
	store         *Store
	profile       *config.JurisdictionProfile
	promptVersion string
	audit         CallRecorder
	log           zerolog.Logger
	clock         func() time.Time
}

// NewEngine wires the engine. audit may be nil.
func NewEngine(leads LeadSource, optOuts OptOutChecker, client llm.Client, store *Store,
	profile *config.JurisdictionProfile, promptVersion string, audit CallRecorder, log zerolog.Logger) *Engine {
	if profile == nil {
		profile = config.DefaultProfile()
	}
	return &Engine{
		leads:         leads,
		optOuts:       optOuts,
		client:        client,
		store:         store,
		profile:       profile,
		promptVersion: promptVersion,
		audit:         audit,
		log:           log.With().Str("component", "nba").Logger(),
		clock:         time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Latest returns the newest unexpired decision, or nil when the caller
// must Compute a fresh one.
func (e *Engine) Latest(ctx context.Context, leadID string) (*contracts.NBADecision, error) {
	return e.store.Latest(ctx, leadID, e.clock())
}

// Compute produces and persists a fresh decision for the lead.
//
// Deterministic short-circuits run first and never touch the network:
// terminal status, protected status, active opt-out. Only then is the
// reasoning provider consulted, and any provider failure whatsoever
// yields the fixed fallback — callers receive a well-typed decision
// 100% of the time.
func (e *Engine) Compute(ctx context.Context, leadID string) (*contracts.NBADecision, error) {
	lead, err := e.leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("load lead %s: %w", leadID, err)
	}
	now := e.clock().UTC()

	if lead.Status.IsTerminal() {
		return e.persist(ctx, &contracts.NBADecision{
			LeadID:      leadID,
			Action:      contracts.ActionClose,
			ReasonCodes: []string{"terminal_status"},
			Confidence:  1.0,
			ExpiresAt:   now.Add(terminalTTL),
		})
	}

	if lead.Status == contracts.StatusAppointmentSet || lead.Status == contracts.StatusQualified {
		return e.persist(ctx, &contracts.NBADecision{
			LeadID:      leadID,
			Action:      contracts.ActionRepHandoff,
			ReasonCodes: []string{"protected_status"},
			Confidence:  0.9,
			ExpiresAt:   now.Add(decisionTTL),
		})
	}

	optedOut, err := e.optOuts.HasActiveOptOut(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("opt-out check for lead %s: %w", leadID, err)
	}
	if optedOut {
		return e.persist(ctx, &contracts.NBADecision{
			LeadID:      leadID,
			Action:      contracts.ActionClose,
			ReasonCodes: []string{"opted_out"},
			Confidence:  1.0,
			ExpiresAt:   now.Add(terminalTTL),
		})
	}

	return e.delegate(ctx, lead, now)
}

// delegate consults the reasoning provider and falls back on any failure.
func (e *Engine) delegate(ctx context.Context, lead *contracts.Lead, now time.Time) (*contracts.NBADecision, error) {
	system := systemPrompt
	user := e.renderUserPrompt(lead, now)
	inputHash := llm.FingerprintInput(system, user)

	run := &ReasoningRun{
		LeadID:        lead.ID,
		TaskType:      "nba",
		Model:         e.client.Model(),
		PromptVersion: e.promptVersion,
		InputHash:     inputHash,
	}

	decision := &contracts.NBADecision{
		LeadID:    lead.ID,
		Model:     e.client.Model(),
		ExpiresAt: now.Add(decisionTTL),
	}

	result, err := e.client.Complete(ctx, system, user)
	if err == nil {
		var out *providerOutput
		out, err = parseProviderOutput(result.Content)
		if err == nil {
			decision.Action = out.NextAction
			decision.Channel = out.Channel
			decision.ScheduleTime = out.ScheduleTime
			decision.ReasonCodes = out.ReasonCodes
			decision.Confidence = out.Confidence
			run.Status = "success"
			run.Output = result.Content
			run.TokensIn = result.TokensIn
			run.TokensOut = result.TokensOut
			run.CostUSD = result.CostUSD
			run.LatencyMS = result.LatencyMS
		}
	}

	if err != nil {
		// Not configured, timed out, transport error, malformed output:
		// all collapse into the same deterministic fallback.
		e.log.Warn().Err(err).Str("lead_id", lead.ID).Msg("reasoning provider failed, using fallback")
		decision.Action = contracts.ActionWait
		decision.Channel = contracts.ChannelNone
		decision.ReasonCodes = []string{"ai_unavailable"}
		decision.Confidence = 0.0
		decision.Model = "fallback"
		run.Model = "fallback"
		run.Status = "error"
		run.Error = err.Error()
	}

	if recErr := e.store.RecordRun(ctx, run); recErr != nil {
		e.log.Error().Err(recErr).Str("lead_id", lead.ID).Msg("record reasoning run failed")
	}
	if e.audit != nil {
		e.audit.RecordReasoningCall(ctx, lead.ID, run, map[string]string{
			"input_hash":     inputHash,
			"model":          run.Model,
			"prompt_version": e.promptVersion,
			"status":         run.Status,
		})
	}

	return e.persist(ctx, decision)
}

func (e *Engine) persist(ctx context.Context, d *contracts.NBADecision) (*contracts.NBADecision, error) {
	inserted, err := e.store.Insert(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("persist decision for lead %s: %w", d.LeadID, err)
	}
	e.log.Debug().
		Str("lead_id", d.LeadID).
		Str("action", string(d.Action)).
		Float64("confidence", d.Confidence).
		Msg("decision computed")
	return inserted, nil
}

func (e *Engine) renderUserPrompt(lead *contracts.Lead, now time.Time) string {
	lastContacted := "never"
	if lead.LastContactedAt != nil {
		lastContacted = lead.LastContactedAt.UTC().Format(time.RFC3339)
	}
	local := now.UTC().Add(time.Duration(e.profile.UTCOffset) * time.Hour)
	caps := e.profile.Caps

	return render(userPromptTemplate, map[string]string{
		"lead_name":      lead.Name(),
		"lead_status":    string(lead.Status),
		"lead_score":     strconv.Itoa(lead.Score),
		"call_attempts":  strconv.Itoa(lead.CallAttempts),
		"call_cap":       strconv.Itoa(caps.Voice),
		"sms_sent":       strconv.Itoa(lead.SMSSent),
		"sms_cap":        strconv.Itoa(caps.SMS),
		"emails_sent":    strconv.Itoa(lead.EmailSent),
		"email_cap":      strconv.Itoa(caps.Email),
		"last_contacted": lastContacted,
		"consent_status": "opted_in",
		"local_hour":     strconv.Itoa(local.Hour()),
	})
}
