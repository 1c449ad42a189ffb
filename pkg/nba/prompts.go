// Package nba computes next-best-action recommendations: deterministic
// short-circuits first, then delegation to the external reasoning
// provider with a fixed fallback. Decisions are immutable snapshots with
// an expiry; a fresh computation is always a new row.
package nba

import "strings"

// Prompt templates are versioned through config.PromptVersion; the
// template text itself changes only with a version bump.

const systemPrompt = `You are the outreach planner for a residential solar sales pipeline.
Given a lead snapshot, recommend exactly one next action.

Respond with a single JSON object and nothing else:
{"next_action": "call|sms|email|wait|rep_handoff|nurture|close",
 "channel": "voice|sms|email" or null,
 "schedule_time": ISO-8601 timestamp or null,
 "reason_codes": [short machine-readable strings],
 "confidence": number between 0 and 1}

Rules:
- Never recommend a channel whose attempt cap is exhausted.
- Prefer the cheapest channel that is likely to connect.
- Recommend wait when outside every contact window.
- Recommend rep_handoff when the lead looks ready to buy.`

const userPromptTemplate = `Lead snapshot:
- name: {lead_name}
- status: {lead_status}
- score: {lead_score}
- call attempts: {call_attempts} (cap {call_cap})
- sms sent: {sms_sent} (cap {sms_cap})
- emails sent: {emails_sent} (cap {email_cap})
- last contacted: {last_contacted}
- consent: {consent_status}
- current local hour: {local_hour}:00

What is the next best action?`

// render substitutes {key} placeholders in a template.
func render(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}
