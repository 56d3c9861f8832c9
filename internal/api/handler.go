// Package api provides HTTP handlers for the agency API.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/niranjanbala/agency-10x/internal/config"
	"github.com/niranjanbala/agency-10x/internal/identity"
	"github.com/niranjanbala/agency-10x/internal/scoping"
	"github.com/niranjanbala/agency-10x/internal/store"
)

// Handler serves visitor, configuration, health and lead endpoints.
type Handler struct {
	repo   store.Repository
	cfg    *config.Config
	script scoping.Script
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, cfg *config.Config) *Handler {
	return &Handler{
		repo:   repo,
		cfg:    cfg,
		script: scoping.ScriptFor(cfg.Scoping.ExhaustQuestions),
	}
}

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Get("/health", h.Health)
		r.Route("/leads", func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Get("/", h.ListLeads)
			r.Get("/{leadID}", h.GetLead)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// GetMe returns the current visitor's identity.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	if visitorID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"visitor_id":   visitorID,
		"display_name": identity.DisplayNameFromContext(r.Context()),
		"session_id":   identity.SessionIDFromContext(r.Context()),
		"session_ttl":  int64(h.cfg.Chat.SessionTTL / time.Second),
	})
}

// GetConfig returns the conversation settings the frontend needs.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"assess_after":      h.script.AnsweredBeforeAssessment(),
		"question_count":    len(h.script.Questions),
		"thinking_delay_ms": h.cfg.Scoping.ThinkingDelay.Milliseconds(),
		"speech": map[string]float64{
			"rate":   scoping.SpeechRate,
			"pitch":  scoping.SpeechPitch,
			"volume": scoping.SpeechVolume,
		},
	})
}
