package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarcommand/outreach/pkg/contracts"
)

func TestSimulatedProviderReproducible(t *testing.T) {
	ctx := context.Background()
	a := NewSimulatedProvider(42)
	b := NewSimulatedProvider(42)

	for i := 0; i < 20; i++ {
		ra, err := a.PlaceCall(ctx, CallRequest{To: "+15551234567"})
		require.NoError(t, err)
		rb, err := b.PlaceCall(ctx, CallRequest{To: "+15551234567"})
		require.NoError(t, err)
		assert.Equal(t, ra.Disposition, rb.Disposition, "call %d", i)
	}
}

func TestSimulatedProviderDispositionsInVocabulary(t *testing.T) {
	ctx := context.Background()
	p := NewSimulatedProvider(time.Now().UnixNano())

	valid := map[contracts.Disposition]bool{
		contracts.DispositionAppointmentBooked:  true,
		contracts.DispositionInterestedNotReady: true,
		contracts.DispositionNotInterested:      true,
		contracts.DispositionNoAnswer:           true,
		contracts.DispositionVoicemail:          true,
		contracts.DispositionWrongNumber:        true,
	}
	for i := 0; i < 100; i++ {
		r, err := p.PlaceCall(ctx, CallRequest{To: "+15551234567"})
		require.NoError(t, err)
		assert.True(t, valid[r.Disposition], "unexpected disposition %s", r.Disposition)
		if r.Disposition == contracts.DispositionNoAnswer {
			assert.Zero(t, r.DurationSeconds, "no answer calls have no duration")
		}
	}
}

func TestSimulatedMessagesComplete(t *testing.T) {
	ctx := context.Background()
	p := NewSimulatedProvider(1)

	sms, err := p.SendMessage(ctx, MessageRequest{To: "+15551234567", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, contracts.DispositionCompleted, sms.Disposition)

	email, err := p.SendEmail(ctx, MessageRequest{To: "a@b.c", Subject: "s", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, contracts.DispositionCompleted, email.Disposition)
}

func TestHTTPProviderPlaceCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Calls.json", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15551234567", r.PostFormValue("To"))
		assert.Equal(t, "+15550000000", r.PostFormValue("From"))
		_, _ = w.Write([]byte(`{"sid": "CA123", "status": "queued"}`))
	}))
	t.Cleanup(srv.Close)

	p := NewHTTPProvider(srv.URL, "tok", "+15550000000")
	r, err := p.PlaceCall(context.Background(), CallRequest{To: "+15551234567"})
	require.NoError(t, err)
	assert.Equal(t, "CA123", r.ExternalID)
	assert.Equal(t, "queued", r.Status)
}

func TestHTTPProviderClientErrorNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	p := NewHTTPProvider(srv.URL, "tok", "+15550000000")
	_, err := p.SendMessage(context.Background(), MessageRequest{To: "+15551234567", Body: "hi"})
	assert.ErrorContains(t, err, "status 400")

	// 4xx does not trip the breaker; requests keep flowing.
	assert.True(t, p.breaker.Allow())
}

func TestHTTPProviderBreakerOpensOnServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	p := NewHTTPProvider(srv.URL, "tok", "+15550000000")
	for i := 0; i < 5; i++ {
		_, err := p.SendEmail(context.Background(), MessageRequest{To: "a@b.c"})
		require.Error(t, err)
	}

	_, err := p.SendEmail(context.Background(), MessageRequest{To: "a@b.c"})
	assert.ErrorContains(t, err, "circuit breaker open")
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := newCircuitBreaker("test", 2, 10*time.Millisecond)

	cb.Failure()
	cb.Failure()
	assert.False(t, cb.Allow(), "breaker should open at threshold")

	time.Sleep(15 * time.Millisecond)
	assert.True(t, cb.Allow(), "breaker should half-open after timeout")

	cb.Success()
	assert.True(t, cb.Allow(), "breaker should close after probe success")
}
