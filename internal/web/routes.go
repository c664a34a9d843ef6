package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/static"
)

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.Health, s.deps.Frames)

	s.router.Get("/api/v1/health", healthHandler.Get)

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.deps.Frames != nil {
			framesHandler := handlers.NewFramesHandler(s.deps.Frames)
			r.Get("/frame.jpg", framesHandler.Latest)
			r.Get("/recognitions", framesHandler.Recognitions)
		}

		if s.deps.Attendance != nil {
			attendanceHandler := handlers.NewAttendanceHandler(s.deps.Attendance, s.deps.Marker, s.deps.Location, s.log)
			r.Get("/attendance", attendanceHandler.List)
			r.Post("/attendance/mark", attendanceHandler.Mark)
			r.Get("/students/{id}/attendance", attendanceHandler.ByStudent)
		}
	})

	s.router.Get("/", s.serveIndex)
}

// serveIndex serves the live view page
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(static.Index())
}
