package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// requireAdmin guards lead endpoints with the configured bearer token.
// With no token configured the endpoints are disabled.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.AdminToken == "" {
			Error(w, http.StatusNotFound, "not found")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.AdminToken)) != 1 {
			Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListLeads returns the newest captured leads.
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	leads, err := h.repo.ListLeads(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list leads", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list leads")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"leads": leads,
		"count": len(leads),
	})
}

// GetLead returns a single lead.
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "leadID")
	lead, err := h.repo.GetLead(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get lead", "lead_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get lead")
		return
	}
	if lead == nil {
		Error(w, http.StatusNotFound, "lead not found")
		return
	}
	JSON(w, http.StatusOK, lead)
}
