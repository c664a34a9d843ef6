// Package attendance records at most one present mark per student, course and day.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/rs/zerolog"
)

// Outcome is the logical result of a mark attempt.
type Outcome string

const (
	Marked         Outcome = "marked"
	AlreadyMarked  Outcome = "already_marked"
	NoActiveCourse Outcome = "no_active_course"
)

// Result describes a mark attempt. Record is set for Marked.
type Result struct {
	Outcome  Outcome
	CourseID string
	Date     string
	Record   *database.AttendanceRecord
}

// CourseResolver finds the course a student is attending at a moment.
type CourseResolver interface {
	ResolveActiveCourse(ctx context.Context, studentID string, ts time.Time) (string, bool, error)
}

// Ledger performs idempotent attendance marking.
type Ledger struct {
	resolver CourseResolver
	store    database.AttendanceWriter
	guard    Guard
	newID    func() string
	log      zerolog.Logger
}

// NewLedger creates a ledger. A nil guard means an in-process LocalGuard.
func NewLedger(resolver CourseResolver, store database.AttendanceWriter, guard Guard, log zerolog.Logger) *Ledger {
	if guard == nil {
		guard = NewLocalGuard()
	}
	return &Ledger{
		resolver: resolver,
		store:    store,
		guard:    guard,
		newID:    uuid.NewString,
		log:      log,
	}
}

// Mark records studentID present for the course active at ts. Logical no-ops are
// reported as outcomes; only resolver, guard and store failures are errors.
func (l *Ledger) Mark(ctx context.Context, studentID string, ts time.Time) (Result, error) {
	courseID, ok, err := l.resolver.ResolveActiveCourse(ctx, studentID, ts)
	if err != nil {
		return Result{}, fmt.Errorf("resolve active course: %w", err)
	}
	if !ok {
		return Result{Outcome: NoActiveCourse}, nil
	}

	date := ts.Format(database.DateLayout)
	res := Result{CourseID: courseID, Date: date}
	key := database.AttendanceKey(studentID, courseID, date)

	unlock, err := l.guard.Lock(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()

	records, err := l.store.QueryAttendance(ctx, studentID)
	if err != nil {
		return Result{}, fmt.Errorf("query attendance: %w", err)
	}
	for _, r := range records {
		if r.Status == database.StatusPresent && r.CourseID == courseID && r.Date == date {
			res.Outcome = AlreadyMarked
			return res, nil
		}
	}

	record := database.AttendanceRecord{
		ID:        l.newID(),
		StudentID: studentID,
		CourseID:  courseID,
		Date:      date,
		Timestamp: ts,
		Status:    database.StatusPresent,
	}
	if err := l.store.AppendAttendance(ctx, record); err != nil {
		// Another process won the race; the store constraint is authoritative.
		if errors.Is(err, database.ErrDuplicateAttendance) {
			res.Outcome = AlreadyMarked
			return res, nil
		}
		return Result{}, fmt.Errorf("append attendance: %w", err)
	}

	l.log.Info().
		Str("student_id", studentID).
		Str("course_id", courseID).
		Str("date", date).
		Msg("attendance marked")

	res.Outcome = Marked
	res.Record = &record
	return res, nil
}
