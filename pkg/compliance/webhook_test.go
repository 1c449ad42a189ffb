package compliance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarcommand/outreach/pkg/contracts"
)

type fakeLeadLookup struct {
	byPhone map[string]*contracts.Lead
}

func (f *fakeLeadLookup) LeadByPhone(ctx context.Context, phone string) (*contracts.Lead, error) {
	if lead, ok := f.byPhone[phone]; ok {
		return lead, nil
	}
	return nil, context.Canceled
}

func postSMS(t *testing.T, h http.Handler, from, body string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"From": {from}, "Body": {body}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestInboundSMSOptOut(t *testing.T) {
	writer := &fakeConsentWriter{current: contracts.StatusContacting}
	leads := &fakeLeadLookup{byPhone: map[string]*contracts.Lead{
		"+15551234567": {ID: "lead-1", Phone: "+15551234567", Status: contracts.StatusContacting},
	}}
	handler := NewInboundSMSHandler(leads, NewOptOutProcessor(writer, nil), zerolog.Nop())

	rr := postSMS(t, handler, "+15551234567", "STOP")
	assert.Equal(t, http.StatusOK, rr.Code)

	require.Len(t, writer.consents, 1)
	assert.Equal(t, contracts.ConsentOptedOut, writer.consents[0].Status)
	assert.Equal(t, contracts.StatusDNC, writer.current)
}

func TestInboundSMSNonOptOutIgnored(t *testing.T) {
	writer := &fakeConsentWriter{current: contracts.StatusContacting}
	leads := &fakeLeadLookup{byPhone: map[string]*contracts.Lead{
		"+15551234567": {ID: "lead-1", Status: contracts.StatusContacting},
	}}
	handler := NewInboundSMSHandler(leads, NewOptOutProcessor(writer, nil), zerolog.Nop())

	rr := postSMS(t, handler, "+15551234567", "sounds great, call me Friday")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, writer.consents)
}

func TestInboundSMSUnknownNumber(t *testing.T) {
	handler := NewInboundSMSHandler(&fakeLeadLookup{}, NewOptOutProcessor(&fakeConsentWriter{}, nil), zerolog.Nop())

	// Unknown senders still get 200: nothing for the provider to retry.
	rr := postSMS(t, handler, "+19990000000", "STOP")
	assert.Equal(t, http.StatusOK, rr.Code)
}
