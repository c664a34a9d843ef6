package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/validate"
	"github.com/rs/zerolog"
)

// Marker records attendance for a student at a moment.
type Marker interface {
	Mark(ctx context.Context, studentID string, ts time.Time) (attendance.Result, error)
}

// AttendanceHandler exposes attendance records and manual marking.
type AttendanceHandler struct {
	store  database.AttendanceReader
	marker Marker
	loc    *time.Location
	now    func() time.Time
	log    zerolog.Logger
}

// NewAttendanceHandler creates an attendance handler. marker may be nil, which
// disables manual marking.
func NewAttendanceHandler(store database.AttendanceReader, marker Marker, loc *time.Location, log zerolog.Logger) *AttendanceHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceHandler{store: store, marker: marker, loc: loc, now: time.Now, log: log}
}

type recordResponse struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
	Date      string `json:"date"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

func toRecordResponses(records []database.AttendanceRecord, loc *time.Location) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, recordResponse{
			ID:        r.ID,
			StudentID: r.StudentID,
			CourseID:  r.CourseID,
			Date:      r.Date,
			Timestamp: r.Timestamp.In(loc).Format(time.RFC3339),
			Status:    string(r.Status),
		})
	}
	return out
}

// List returns the records of one day. Query: date (YYYY-MM-DD, default today).
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.now().In(h.loc).Format(database.DateLayout)
	} else if _, err := time.Parse(database.DateLayout, date); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	records, err := h.store.ListAttendanceByDate(r.Context(), date)
	if err != nil {
		h.log.Error().Err(err).Str("date", date).Msg("failed to list attendance")
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"date":    date,
		"records": toRecordResponses(records, h.loc),
	})
}

// ByStudent returns all records of a student.
func (h *AttendanceHandler) ByStudent(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	records, err := h.store.QueryAttendance(r.Context(), studentID)
	if err != nil {
		h.log.Error().Err(err).Str("student_id", sanitizeForLog(studentID)).Msg("failed to query attendance")
		respondError(w, http.StatusInternalServerError, "failed to query attendance")
		return
	}
	respondJSON(w, http.StatusOK, toRecordResponses(records, h.loc))
}

type markRequest struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
	// RFC 3339, defaults to now.
	At string `json:"at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type markResponse struct {
	Outcome  string          `json:"outcome"`
	CourseID string          `json:"course_id,omitempty"`
	Date     string          `json:"date,omitempty"`
	Record   *recordResponse `json:"record,omitempty"`
}

// Mark records attendance for a student, as if recognized at the given time.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	if h.marker == nil {
		respondError(w, http.StatusServiceUnavailable, "marking is not enabled")
		return
	}

	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := validate.Struct(req); err != nil {
		respondFields(w, validate.Fields(err))
		return
	}

	ts := h.now()
	if req.At != "" {
		ts, _ = time.Parse(time.RFC3339, req.At)
	}
	ts = ts.In(h.loc)

	res, err := h.marker.Mark(r.Context(), req.StudentID, ts)
	if err != nil {
		h.log.Error().Err(err).Str("student_id", sanitizeForLog(req.StudentID)).Msg("failed to mark attendance")
		status := http.StatusInternalServerError
		if errors.Is(err, attendance.ErrLockTimeout) {
			status = http.StatusConflict
		}
		respondError(w, status, "failed to mark attendance")
		return
	}

	resp := markResponse{Outcome: string(res.Outcome), CourseID: res.CourseID, Date: res.Date}
	if res.Record != nil {
		rr := toRecordResponses([]database.AttendanceRecord{*res.Record}, h.loc)
		resp.Record = &rr[0]
	}
	status := http.StatusOK
	if res.Outcome == attendance.Marked {
		status = http.StatusCreated
	}
	respondJSON(w, status, resp)
}
