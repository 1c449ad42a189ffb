package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const anthropicEndpoint = "https://api.anthropic.com/v1/messages"

// Cost per million tokens (input, output) for known models. Unknown
// models fall back to the sonnet rates.
var costTable = map[string][2]float64{
	"claude-sonnet-4-5-20250929": {3.0, 15.0},
	"claude-haiku-4-5-20251001":  {0.80, 4.0},
	"claude-opus-4-6":            {15.0, 75.0},
}

var defaultCost = [2]float64{3.0, 15.0}

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	httpClient  *http.Client
	endpoint    string
}

// AnthropicOption customizes the client.
type AnthropicOption func(*AnthropicClient)

// WithTimeout sets the hard per-request timeout.
func WithTimeout(d time.Duration) AnthropicOption {
	return func(c *AnthropicClient) { c.timeout = d }
}

// WithEndpoint overrides the API endpoint, for tests.
func WithEndpoint(url string) AnthropicOption {
	return func(c *AnthropicClient) { c.endpoint = url }
}

// WithHTTPClient injects the transport, for tests.
func WithHTTPClient(hc *http.Client) AnthropicOption {
	return func(c *AnthropicClient) { c.httpClient = hc }
}

// NewAnthropicClient creates a client. An empty apiKey yields a disabled
// client whose Complete always returns ErrNotConfigured.
func NewAnthropicClient(apiKey, model string, opts ...AnthropicOption) *AnthropicClient {
	c := &AnthropicClient{
		apiKey:      apiKey,
		model:       model,
		maxTokens:   1024,
		temperature: 0.2,
		timeout:     30 * time.Second,
		endpoint:    anthropicEndpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Enabled reports whether credentials are configured.
func (c *AnthropicClient) Enabled() bool { return c.apiKey != "" }

// Model returns the configured model id.
func (c *AnthropicClient) Model() string {
	if !c.Enabled() {
		return "fallback"
	}
	return c.model
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete submits the prompt pair under the hard timeout.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Result, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()

	body, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		System:      systemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: userPrompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic: status %d", resp.StatusCode)
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &MalformedOutputError{Detail: fmt.Sprintf("decode response: %v", err)}
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, &MalformedOutputError{Detail: "empty content"}
	}

	latency := time.Since(start)
	rates, ok := costTable[c.model]
	if !ok {
		rates = defaultCost
	}
	cost := (float64(parsed.Usage.InputTokens)*rates[0] + float64(parsed.Usage.OutputTokens)*rates[1]) / 1e6

	return &Result{
		Content:   text,
		Model:     c.model,
		TokensIn:  parsed.Usage.InputTokens,
		TokensOut: parsed.Usage.OutputTokens,
		CostUSD:   cost,
		Latency:   latency,
		LatencyMS: int(latency.Milliseconds()),
	}, nil
}
