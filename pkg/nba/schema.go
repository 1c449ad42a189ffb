package nba

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/solarcommand/outreach/pkg/contracts"
	"github.com/solarcommand/outreach/pkg/llm"
)

// outputSchema constrains the reasoning provider's output to the fixed
// action vocabulary. Anything that fails validation is malformed output
// and takes the fallback path.
const outputSchemaJSON = `{
	"type": "object",
	"required": ["next_action", "confidence"],
	"properties": {
		"next_action": {
			"type": "string",
			"enum": ["call", "sms", "email", "wait", "rep_handoff", "nurture", "close"]
		},
		"channel": {
			"type": ["string", "null"],
			"enum": ["voice", "sms", "email", null]
		},
		"schedule_time": {"type": ["string", "null"]},
		"reason_codes": {
			"type": "array",
			"items": {"type": "string"}
		},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`

var outputSchema = jsonschema.MustCompileString("nba_output.json", outputSchemaJSON)

// providerOutput is the decoded, validated provider response.
type providerOutput struct {
	NextAction   contracts.NBAAction `json:"next_action"`
	Channel      contracts.Channel   `json:"channel"`
	ScheduleTime *time.Time          `json:"schedule_time"`
	ReasonCodes  []string            `json:"reason_codes"`
	Confidence   float64             `json:"confidence"`
}

// parseProviderOutput validates raw provider content against the output
// schema and decodes it. Any failure is a MalformedOutputError.
func parseProviderOutput(content string) (*providerOutput, error) {
	var generic any
	if err := json.Unmarshal([]byte(content), &generic); err != nil {
		return nil, &llm.MalformedOutputError{Detail: fmt.Sprintf("not JSON: %v", err)}
	}
	if err := outputSchema.Validate(generic); err != nil {
		return nil, &llm.MalformedOutputError{Detail: fmt.Sprintf("schema violation: %v", err)}
	}

	var out providerOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, &llm.MalformedOutputError{Detail: fmt.Sprintf("decode: %v", err)}
	}
	if !out.NextAction.Valid() {
		return nil, &llm.MalformedOutputError{Detail: fmt.Sprintf("unknown action %q", out.NextAction)}
	}
	if out.Channel != contracts.ChannelNone && !out.Channel.Valid() {
		return nil, &llm.MalformedOutputError{Detail: fmt.Sprintf("unknown channel %q", out.Channel)}
	}
	return &out, nil
}
