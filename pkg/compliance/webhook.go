package compliance

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/solarcommand/outreach/pkg/contracts"
)

// LeadLookup resolves inbound phone numbers to leads.
type LeadLookup interface {
	LeadByPhone(ctx context.Context, phone string) (*contracts.Lead, error)
}

// InboundSMSHandler receives provider webhooks for inbound SMS and runs
// opt-out detection. It always answers 200 with an empty body: the
// provider retries non-2xx responses and an unknown sender or a
// non-opt-out message is not a failure.
type InboundSMSHandler struct {
	leads     LeadLookup
	processor *OptOutProcessor
	log       zerolog.Logger
}

// NewInboundSMSHandler creates the webhook handler.
func NewInboundSMSHandler(leads LeadLookup, processor *OptOutProcessor, log zerolog.Logger) *InboundSMSHandler {
	return &InboundSMSHandler{
		leads:     leads,
		processor: processor,
		log:       log.With().Str("component", "inbound_sms").Logger(),
	}
}

// ServeHTTP handles one Twilio-shaped inbound message (form fields From
// and Body).
func (h *InboundSMSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")

	if from == "" || !IsOptOutMessage(body) {
		w.WriteHeader(http.StatusOK)
		return
	}

	lead, err := h.leads.LeadByPhone(r.Context(), from)
	if err != nil {
		h.log.Warn().Err(err).Str("from", from).Msg("opt-out from unknown number")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.processor.HandleOptOut(r.Context(), lead.ID, contracts.ChannelSMS, body); err != nil {
		h.log.Error().Err(err).Str("lead_id", lead.ID).Msg("opt-out processing failed")
		// Let the provider retry the webhook.
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	h.log.Info().Str("lead_id", lead.ID).Msg("opt-out recorded")
	w.WriteHeader(http.StatusOK)
}
