package nba

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarcommand/outreach/pkg/contracts"
	"github.com/solarcommand/outreach/pkg/llm"
)

func TestParseProviderOutputValid(t *testing.T) {
	out, err := parseProviderOutput(`{
		"next_action": "call",
		"channel": "voice",
		"schedule_time": null,
		"reason_codes": ["high_score", "never_contacted"],
		"confidence": 0.85
	}`)
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionCall, out.NextAction)
	assert.Equal(t, contracts.ChannelVoice, out.Channel)
	assert.Equal(t, []string{"high_score", "never_contacted"}, out.ReasonCodes)
	assert.InDelta(t, 0.85, out.Confidence, 1e-9)
	assert.Nil(t, out.ScheduleTime)
}

func TestParseProviderOutputMinimal(t *testing.T) {
	out, err := parseProviderOutput(`{"next_action": "wait", "confidence": 0}`)
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionWait, out.NextAction)
	assert.Equal(t, contracts.ChannelNone, out.Channel)
}

func TestParseProviderOutputMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":            `next action: call`,
		"unknown action":      `{"next_action": "telepathy", "confidence": 0.5}`,
		"missing action":      `{"confidence": 0.5}`,
		"missing confidence":  `{"next_action": "wait"}`,
		"confidence too high": `{"next_action": "wait", "confidence": 1.5}`,
		"negative confidence": `{"next_action": "wait", "confidence": -0.1}`,
		"bad channel":         `{"next_action": "call", "channel": "fax", "confidence": 0.5}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseProviderOutput(content)
			var malformed *llm.MalformedOutputError
			assert.True(t, errors.As(err, &malformed), "want MalformedOutputError, got %v", err)
		})
	}
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	got := render("hello {name}, cap is {cap}", map[string]string{"name": "Jane", "cap": "3"})
	assert.Equal(t, "hello Jane, cap is 3", got)
}
