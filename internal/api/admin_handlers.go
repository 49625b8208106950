/**
 * @description
 * HTTP handlers for admin endpoints. All routes here sit behind the AdminOnly
 * middleware.
 */
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleAdminStats returns platform counters.
func (h *Handler) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// handleAdminListSubscriptions lists subscriptions with optional filters.
func (h *Handler) handleAdminListSubscriptions(w http.ResponseWriter, r *http.Request) {
	plan := r.URL.Query().Get("plan")
	onlyActive := r.URL.Query().Get("active") == "true"

	subs, err := h.admin.ListSubscriptions(r.Context(), plan, onlyActive)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, subs)
}

// handleAdminRetryPayment asks the provider to re-attempt a failed charge.
func (h *Handler) handleAdminRetryPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.admin.RetryPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, payment)
}

// handleAdminUpdateVideoStatus records a rendering pipeline callback for a
// generation. The pipeline authenticates with an admin-role token.
func (h *Handler) handleAdminUpdateVideoStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status   string `json:"status"`
		VideoURL string `json:"video_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.videos.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.VideoURL); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}
