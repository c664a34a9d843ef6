package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondFields sends a validation error response with per-field messages.
func respondFields(w http.ResponseWriter, fields map[string]string) {
	respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}

// HealthInfo describes the running recognizer.
type HealthInfo struct {
	GallerySize int    `json:"gallery_size"`
	MatchPolicy string `json:"match_policy"`
	Driver      string `json:"database_driver"`
}

// HealthHandler reports liveness and the time of the last processed frame.
type HealthHandler struct {
	info    HealthInfo
	frames  *FrameStore
	started time.Time
}

// NewHealthHandler creates a health handler. frames may be nil.
func NewHealthHandler(info HealthInfo, frames *FrameStore) *HealthHandler {
	return &HealthHandler{info: info, frames: frames, started: time.Now()}
}

// Get handles the health check endpoint.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"gallery_size":   h.info.GallerySize,
		"match_policy":   h.info.MatchPolicy,
		"database":       h.info.Driver,
	}
	if h.frames != nil {
		if _, at, ok := h.frames.Latest(); ok {
			resp["last_frame_at"] = at.Format(time.RFC3339)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
