/**
 * @description
 * HTTP handlers for video generation records.
 */
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleCreateVideo records a generation and consumes its credits.
func (h *Handler) handleCreateVideo(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Title      string `json:"title"`
		Topic      string `json:"topic"`
		SceneCount int    `json:"scene_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	video, err := h.videos.CreateGeneration(r.Context(), userID, req.Title, req.Topic, req.SceneCount)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, video)
}

// handleListVideos returns the user's videos, newest first.
func (h *Handler) handleListVideos(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	videos, err := h.videos.List(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, videos)
}

// handleGetVideo returns a single video owned by the user.
func (h *Handler) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	video, err := h.videos.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, video)
}

// handleDeleteVideo removes a video owned by the user.
func (h *Handler) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.videos.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
