// Package llm wraps the external reasoning provider behind a small
// client interface. Callers treat all failure modes identically; the
// typed errors exist for observability, not for branching.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConfigured means no provider credentials are present.
	ErrNotConfigured = errors.New("reasoning provider not configured")
	// ErrTimeout means the provider did not answer within the hard timeout.
	ErrTimeout = errors.New("reasoning provider timed out")
)

// MalformedOutputError means the provider answered but the payload could
// not be used (not JSON, schema violation, unknown action).
type MalformedOutputError struct {
	Detail string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed provider output: %s", e.Detail)
}

// Client is the reasoning provider contract.
type Client interface {
	// Complete submits a prompt pair and returns the structured result.
	// Implementations enforce a hard timeout internally.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Result, error)
	// Enabled reports whether the provider is configured at all.
	Enabled() bool
	// Model identifies the configured model for audit records.
	Model() string
}

// Result is one provider completion with its cost accounting.
type Result struct {
	Content   string        `json:"content"`
	Model     string        `json:"model"`
	TokensIn  int           `json:"tokens_in"`
	TokensOut int           `json:"tokens_out"`
	CostUSD   float64       `json:"cost_usd"`
	Latency   time.Duration `json:"-"`
	LatencyMS int           `json:"latency_ms"`
}

// Fingerprint identifies one reasoning invocation for reproducibility:
// same fingerprint + model + prompt version should be traceable even
// though the provider is non-deterministic.
type Fingerprint struct {
	Model         string `json:"model"`
	PromptVersion string `json:"prompt_version"`
	InputHash     string `json:"input_hash"`
}

// FingerprintInput hashes the prompt pair into a short input fingerprint.
func FingerprintInput(systemPrompt, userPrompt string) string {
	sum := sha256.Sum256([]byte(systemPrompt + userPrompt))
	return hex.EncodeToString(sum[:])[:16]
}
