// Package schedule resolves which course session, if any, a student is attending
// at a given moment.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/rs/zerolog"
)

// CourseSource provides the courses a student is enrolled in.
type CourseSource interface {
	GetCoursesForStudent(ctx context.Context, studentID string) ([]database.Course, error)
}

// Window is a concrete session window on one calendar date. End includes the grace period.
type Window struct {
	CourseID string
	Start    time.Time
	End      time.Time
}

// Contains reports whether t falls inside the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Resolver maps (student, timestamp) to the active course.
type Resolver struct {
	courses CourseSource
	grace   time.Duration
	log     zerolog.Logger
}

// NewResolver creates a resolver. grace extends every window past its end time.
func NewResolver(courses CourseSource, grace time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{courses: courses, grace: grace, log: log}
}

// Grace returns the configured grace period.
func (r *Resolver) Grace() time.Duration {
	return r.grace
}

// ResolveActiveCourse returns the course whose window on ts's weekday contains ts.
// Courses are checked in course ID order and the first hit wins. ok is false when
// no window is active or the student is unknown.
func (r *Resolver) ResolveActiveCourse(ctx context.Context, studentID string, ts time.Time) (string, bool, error) {
	windows, err := r.ActiveWindows(ctx, studentID, ts)
	if err != nil {
		return "", false, err
	}
	if len(windows) == 0 {
		return "", false, nil
	}
	if len(windows) > 1 {
		ids := make([]string, len(windows))
		for i, w := range windows {
			ids[i] = w.CourseID
		}
		r.log.Warn().
			Str("student_id", studentID).
			Strs("courses", ids).
			Time("at", ts).
			Msg("overlapping active sessions, using lowest course ID")
	}
	return windows[0].CourseID, true, nil
}

// ActiveWindows returns every enrolled course window containing ts, ordered by course ID.
func (r *Resolver) ActiveWindows(ctx context.Context, studentID string, ts time.Time) ([]Window, error) {
	courses, err := r.courses.GetCoursesForStudent(ctx, studentID)
	if errors.Is(err, database.ErrNotFound) {
		r.log.Debug().Str("student_id", studentID).Msg("unknown student")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get courses for student %s: %w", studentID, err)
	}

	sorted := make([]database.Course, len(courses))
	copy(sorted, courses)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CourseID < sorted[j].CourseID })

	var active []Window
	for _, c := range sorted {
		session, ok := c.Schedule[ts.Weekday()]
		if !ok {
			continue
		}
		w, err := WindowOn(c.CourseID, session, ts, r.grace)
		if err != nil {
			r.log.Warn().Err(err).Str("course_id", c.CourseID).Msg("skipping malformed session window")
			continue
		}
		if w.Contains(ts) {
			active = append(active, w)
		}
	}
	return active, nil
}

// WindowOn places a session window on the calendar date of day, in day's location.
func WindowOn(courseID string, session database.SessionWindow, day time.Time, grace time.Duration) (Window, error) {
	sh, sm, err := ParseClock(session.Start)
	if err != nil {
		return Window{}, fmt.Errorf("start time: %w", err)
	}
	eh, em, err := ParseClock(session.End)
	if err != nil {
		return Window{}, fmt.Errorf("end time: %w", err)
	}

	y, m, d := day.Date()
	loc := day.Location()
	start := time.Date(y, m, d, sh, sm, 0, 0, loc)
	end := time.Date(y, m, d, eh, em, 0, 0, loc)
	if end.Before(start) {
		return Window{}, fmt.Errorf("end time %s before start time %s", session.End, session.Start)
	}

	return Window{CourseID: courseID, Start: start, End: end.Add(grace)}, nil
}

// ParseClock parses a 24h "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse(database.ClockLayout, s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}
