// Package api is the dashboard trigger surface: a small JSON API for
// creating scheduled jobs manually and inspecting queue state.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"monibot/internal/domain"
	"monibot/internal/store"
)

type Server struct {
	r     *chi.Mux
	store store.Store
}

func NewServer(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, store: st}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Post("/api/jobs", s.createJob)
	r.Get("/api/jobs/{id}", s.getJob)
	r.Get("/api/transactions", s.listTransactions)
	r.Get("/api/campaigns", s.listCampaigns)
	r.Get("/api/stats", s.stats)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("monibot_up 1\n"))
}

type createJobReq struct {
	Type        string                 `json:"type"`
	ScheduledAt *time.Time             `json:"scheduled_at"`
	Payload     domain.CampaignPayload `json:"payload"`
}

type createJobResp struct {
	ID string `json:"id"`
}

// createJob is the manual dashboard trigger: it inserts a pending job
// that the dispatcher picks up when due.
func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.Type == "" {
		http.Error(w, "type is required", 400)
		return
	}
	scheduledAt := time.Now()
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}

	id, err := s.store.CreateJob(r.Context(), domain.ScheduledJob{
		Type:        req.Type,
		Status:      domain.JobPending,
		Payload:     req.Payload,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusAccepted, createJobResp{ID: id})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", 404)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, map[string]any{
		"id":           j.ID,
		"type":         j.Type,
		"status":       j.Status,
		"payload":      j.Payload,
		"result":       j.Result,
		"scheduled_at": j.ScheduledAt.Format(time.RFC3339),
		"completed_at": j.CompletedAt,
	})
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	txs, err := s.store.RecentTransactions(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	out := make([]map[string]any, 0, len(txs))
	for _, t := range txs {
		out = append(out, map[string]any{
			"id":           t.ID,
			"type":         t.Type,
			"amount":       t.Amount,
			"tx_hash":      t.TxHash,
			"replied":      t.Replied,
			"retry_count":  t.RetryCount,
			"error_reason": t.ErrorReason,
			"created_at":   t.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, 200, out)
}

func (s *Server) listCampaigns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	campaigns, err := s.store.ListCampaigns(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, campaigns)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.MissionStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, map[string]any{
		"spent_budget":    st.SpentBudget,
		"users_onboarded": st.UsersOnboarded,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 100 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
