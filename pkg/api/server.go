package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/solarcommand/outreach/pkg/audit"
	"github.com/solarcommand/outreach/pkg/contracts"
	"github.com/solarcommand/outreach/pkg/ledger"
)

// LeadReader is the read-only slice of the Contact Ledger the API serves.
type LeadReader interface {
	GetLead(ctx context.Context, id string) (*contracts.Lead, error)
	LeadsByStatus(ctx context.Context, status contracts.LeadStatus, limit int) ([]*contracts.Lead, error)
	AttemptsForLead(ctx context.Context, leadID string) ([]*contracts.OutreachAttempt, error)
}

// DecisionReader serves the current NBA decision for a lead.
type DecisionReader interface {
	Latest(ctx context.Context, leadID string) (*contracts.NBADecision, error)
}

// Server is the read-only reporting API.
type Server struct {
	leads     LeadReader
	decisions DecisionReader
	trail     *audit.Trail
	log       zerolog.Logger
}

// NewServer wires the API over its read models.
func NewServer(leads LeadReader, decisions DecisionReader, trail *audit.Trail, log zerolog.Logger) *Server {
	return &Server{
		leads:     leads,
		decisions: decisions,
		trail:     trail,
		log:       log.With().Str("component", "api").Logger(),
	}
}

// Router builds the route table. signingKey empty disables auth.
func (s *Server) Router(signingKey []byte) http.Handler {
	r := mux.NewRouter()
	r.Use(AuthMiddleware(signingKey))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/leads", s.handleListLeads).Methods(http.MethodGet)
	r.HandleFunc("/leads/{id}", s.handleGetLead).Methods(http.MethodGet)
	r.HandleFunc("/leads/{id}/attempts", s.handleAttempts).Methods(http.MethodGet)
	r.HandleFunc("/leads/{id}/nba", s.handleNBA).Methods(http.MethodGet)
	r.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)
	r.HandleFunc("/audit/verify", s.handleAuditVerify).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	status := contracts.LeadStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = contracts.StatusContacting
	}
	limit := queryInt(r, "limit", 100)

	leads, err := s.leads.LeadsByStatus(r.Context(), status, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list leads")
		WriteInternal(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	lead, err := s.leads.GetLead(r.Context(), id)
	if errors.Is(err, ledger.ErrLeadNotFound) {
		WriteNotFound(w, "no lead with id "+id)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("lead_id", id).Msg("get lead")
		WriteInternal(w)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	attempts, err := s.leads.AttemptsForLead(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Str("lead_id", id).Msg("list attempts")
		WriteInternal(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts, "count": len(attempts)})
}

func (s *Server) handleNBA(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	decision, err := s.decisions.Latest(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Str("lead_id", id).Msg("latest decision")
		WriteInternal(w)
		return
	}
	if decision == nil {
		WriteNotFound(w, "no unexpired decision for lead "+id)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		EntryType:  audit.EntryType(q.Get("type")),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Actor:      q.Get("actor"),
		MaxResults: queryInt(r, "limit", 500),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Bad Request", "since must be RFC 3339")
			return
		}
		filter.StartTime = &t
	}

	entries := s.trail.Query(filter)
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if err := s.trail.VerifyChain(); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":      true,
		"size":       s.trail.Size(),
		"chain_head": s.trail.ChainHead(),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
