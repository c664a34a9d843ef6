package handlers

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/rs/zerolog"
)

// Recognition is one face seen by the capture loop.
type Recognition struct {
	Label    string    `json:"label"`
	Known    bool      `json:"known"`
	Distance float64   `json:"distance"`
	Outcome  string    `json:"outcome,omitempty"`
	CourseID string    `json:"course_id,omitempty"`
	Box      [4]int    `json:"box"` // x1, y1, x2, y2
	BoxRel   []float64 `json:"box_rel,omitempty"`
	SeenAt   time.Time `json:"seen_at"`
}

// FrameStore keeps the latest annotated frame and a bounded recognition history.
// It is written by the capture loop and read by HTTP handlers.
type FrameStore struct {
	mu      sync.RWMutex
	jpeg    []byte
	at      time.Time
	history []Recognition // oldest first
	size    int
	log     zerolog.Logger
}

// NewFrameStore creates a store keeping up to size recognitions.
func NewFrameStore(size int, log zerolog.Logger) *FrameStore {
	if size <= 0 {
		size = constants.RecognitionHistorySize
	}
	return &FrameStore{size: size, log: log}
}

// Publish stores a processed frame.
func (s *FrameStore) Publish(res recognition.Result) {
	var data []byte
	if res.Annotated != nil {
		var err error
		if data, err = recognition.EncodeJPEG(res.Annotated); err != nil {
			s.log.Warn().Err(err).Msg("failed to encode annotated frame")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if data != nil {
		s.jpeg = data
		s.at = res.ProcessedAt
	}
	for _, f := range res.Faces {
		s.history = append(s.history, Recognition{
			Label:    f.Label,
			Known:    f.Known,
			Distance: f.Distance,
			Outcome:  string(f.Outcome),
			CourseID: f.CourseID,
			Box:      [4]int{f.Box.Min.X, f.Box.Min.Y, f.Box.Max.X, f.Box.Max.Y},
			BoxRel:   f.RelBox,
			SeenAt:   res.ProcessedAt,
		})
	}
	if over := len(s.history) - s.size; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// Latest returns the last annotated JPEG.
func (s *FrameStore) Latest() ([]byte, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jpeg, s.at, s.jpeg != nil
}

// Recent returns up to limit recognitions, newest first.
func (s *FrameStore) Recent(limit int) []Recognition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]Recognition, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// FramesHandler serves the live view.
type FramesHandler struct {
	store *FrameStore
}

// NewFramesHandler creates a frames handler.
func NewFramesHandler(store *FrameStore) *FramesHandler {
	return &FramesHandler{store: store}
}

// Latest serves the most recent annotated frame as JPEG.
func (h *FramesHandler) Latest(w http.ResponseWriter, r *http.Request) {
	data, at, ok := h.store.Latest()
	if !ok {
		respondError(w, http.StatusNotFound, "no frame captured yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Recognitions lists recent recognitions. Optional query: limit.
func (h *FramesHandler) Recognitions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, h.store.Recent(limit))
}
