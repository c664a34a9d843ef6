package database

import (
	"fmt"
	"strings"
	"time"
)

// AttendanceStatus is the status stored on an attendance record
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
)

// DateLayout is the calendar day format stored on attendance records (ISO 8601)
const DateLayout = "2006-01-02"

// ClockLayout is the time-of-day format used by course schedules
const ClockLayout = "15:04"

// Student represents an enrolled person
type Student struct {
	StudentID         string
	Name              string
	Email             string
	EnrolledCourseIDs []string // sorted by course ID
	CreatedAt         time.Time
}

// SessionWindow is the nominal time window of a course on one weekday.
// Start and End use ClockLayout ("09:00").
type SessionWindow struct {
	Start string `yaml:"start_time" validate:"required,datetime=15:04"`
	End   string `yaml:"end_time" validate:"required,datetime=15:04"`
}

// Course represents a class with a weekly schedule (at most one window per weekday)
type Course struct {
	CourseID           string
	Name               string
	Instructor         string
	EnrolledStudentIDs []string // sorted by student ID
	Schedule           map[time.Weekday]SessionWindow
	CreatedAt          time.Time
}

// AttendanceRecord represents a single append-only attendance event
type AttendanceRecord struct {
	ID        string
	StudentID string
	CourseID  string
	Date      string // calendar day in DateLayout
	Timestamp time.Time
	Status    AttendanceStatus
}

// Key returns the deterministic uniqueness key for the record.
func (r AttendanceRecord) Key() string {
	return AttendanceKey(r.StudentID, r.CourseID, r.Date)
}

// AttendanceKey builds the "student|course|date" key used to enforce at most one
// present record per student, course and calendar day.
func AttendanceKey(studentID, courseID, date string) string {
	return studentID + "|" + courseID + "|" + date
}

// StoredIdentity represents a cached gallery embedding keyed by reference image content
type StoredIdentity struct {
	ContentHash string
	Label       string
	Embedding   []float32
	Model       string
	CreatedAt   time.Time
}

// ParseWeekday parses an English weekday name ("Sunday", "sun", case-insensitive).
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}
