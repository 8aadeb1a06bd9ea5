package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"repostflow/internal/domain"
	"repostflow/internal/metrics"
	"repostflow/internal/spacer"
	"repostflow/internal/store"
)

type Server struct {
	r      *chi.Mux
	spacer *spacer.Spacer
	repo   store.Repository
}

func NewServer(sp *spacer.Spacer, repo store.Repository, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, spacer: sp, repo: repo}

	r.Get("/health", s.health)
	r.Handle("/metrics", m.Handler())
	r.Post("/api/reposts", s.submitRepost)
	r.Get("/api/reposts", s.listReposts)
	r.Get("/api/reposts/{id}", s.getRepost)
	r.Delete("/api/reposts/{id}", s.cancelRepost)
	r.Get("/api/posts", s.listPosts)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type submitReq struct {
	PostID string `json:"post_id"`
}

func (s *Server) submitRepost(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	entry, err := s.spacer.Submit(domain.RepostRequest{
		PostID:      req.PostID,
		RequestedAt: time.Now(),
	})
	if errors.Is(err, spacer.ErrInvalidRequest) {
		http.Error(w, err.Error(), 400)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusAccepted, entryJSON(entry))
}

func (s *Server) listReposts(w http.ResponseWriter, r *http.Request) {
	entries, err := s.repo.ListEntries(r.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryJSON(e))
	}
	writeJSON(w, 200, out)
}

func (s *Server) getRepost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := s.repo.GetEntry(r.Context(), id)
	if err != nil {
		http.Error(w, "not found", 404)
		return
	}
	writeJSON(w, 200, entryJSON(e))
}

func (s *Server) cancelRepost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.spacer.Cancel(id) {
		http.Error(w, "not found", 404)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.repo.ListRecentPosts(r.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	out := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		out = append(out, map[string]any{
			"id":         p.ID,
			"account_id": p.AccountID,
			"author":     p.Author,
			"text":       p.Text,
			"posted_at":  p.PostedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, 200, out)
}

func entryJSON(e domain.ScheduleEntry) map[string]any {
	out := map[string]any{
		"id":           e.ID,
		"post_id":      e.Request.PostID,
		"status":       string(e.Status),
		"scheduled_at": e.ScheduledAt.Format(time.RFC3339),
	}
	if e.ExecutedAt != nil {
		out["executed_at"] = e.ExecutedAt.Format(time.RFC3339)
	}
	if e.Error != "" {
		out["error"] = e.Error
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
