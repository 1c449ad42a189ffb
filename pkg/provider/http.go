package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPProvider talks to a Twilio-shaped REST provider. Calls and
// messages are fire-and-acknowledge: the provider returns a correlation
// sid and delivers final status asynchronously.
type HTTPProvider struct {
	baseURL   string
	authToken string
	from      string
	client    *http.Client
	breaker   *circuitBreaker
}

// NewHTTPProvider creates a provider client.
func NewHTTPProvider(baseURL, authToken, from string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		from:      from,
		client:    &http.Client{Timeout: 15 * time.Second},
		breaker:   newCircuitBreaker("channel_provider", 5, 10*time.Second),
	}
}

type providerAck struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

// PlaceCall starts an outbound call.
func (p *HTTPProvider) PlaceCall(ctx context.Context, req CallRequest) (*Result, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", p.orFrom(req.From))
	if req.Script != "" {
		form.Set("Twiml", req.Script)
	}
	ack, err := p.post(ctx, "/Calls.json", form)
	if err != nil {
		return nil, fmt.Errorf("place call to %s: %w", req.To, err)
	}
	return &Result{ExternalID: ack.Sid, Status: ack.Status}, nil
}

// SendMessage sends an SMS.
func (p *HTTPProvider) SendMessage(ctx context.Context, req MessageRequest) (*Result, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", p.orFrom(req.From))
	form.Set("Body", req.Body)
	ack, err := p.post(ctx, "/Messages.json", form)
	if err != nil {
		return nil, fmt.Errorf("send sms to %s: %w", req.To, err)
	}
	return &Result{ExternalID: ack.Sid, Status: ack.Status, Body: req.Body}, nil
}

// SendEmail sends an email through the provider's mail endpoint.
func (p *HTTPProvider) SendEmail(ctx context.Context, req MessageRequest) (*Result, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("Subject", req.Subject)
	form.Set("Body", req.Body)
	ack, err := p.post(ctx, "/Emails.json", form)
	if err != nil {
		return nil, fmt.Errorf("send email to %s: %w", req.To, err)
	}
	return &Result{ExternalID: ack.Sid, Status: ack.Status, Body: req.Body}, nil
}

func (p *HTTPProvider) orFrom(from string) string {
	if from != "" {
		return from
	}
	return p.from
}

func (p *HTTPProvider) post(ctx context.Context, path string, form url.Values) (*providerAck, error) {
	if !p.breaker.Allow() {
		return nil, fmt.Errorf("circuit breaker open for %s", p.breaker.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+p.authToken)

	resp, err := p.client.Do(req)
	if err != nil {
		p.breaker.Failure()
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		p.breaker.Failure()
		return nil, fmt.Errorf("provider status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		// 4xx is the caller's fault; don't trip the breaker.
		return nil, fmt.Errorf("provider rejected request: status %d", resp.StatusCode)
	}

	var ack providerAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		p.breaker.Failure()
		return nil, fmt.Errorf("decode provider ack: %w", err)
	}
	p.breaker.Success()
	return &ack, nil
}
