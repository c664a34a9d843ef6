package database

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a student or course does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateAttendance is returned by AppendAttendance when a present record
	// already exists for the same student, course and date
	ErrDuplicateAttendance = errors.New("attendance already recorded")
)

// StudentReader provides read-only access to students
type StudentReader interface {
	// GetStudent retrieves a student with enrolled course IDs, returns ErrNotFound if missing
	GetStudent(ctx context.Context, studentID string) (*Student, error)
}

// CourseReader provides read-only access to courses and their schedules
type CourseReader interface {
	// GetCoursesForStudent returns the courses a student is enrolled in, ordered by course ID
	GetCoursesForStudent(ctx context.Context, studentID string) ([]Course, error)
	// GetCourse retrieves a course with schedule and enrolled students, returns ErrNotFound if missing
	GetCourse(ctx context.Context, courseID string) (*Course, error)
}

// AttendanceReader provides read-only access to attendance records
type AttendanceReader interface {
	// QueryAttendance returns all attendance records of a student ordered by timestamp
	QueryAttendance(ctx context.Context, studentID string) ([]AttendanceRecord, error)
	// ListAttendanceByDate returns all records for a calendar day (DateLayout) ordered by timestamp
	ListAttendanceByDate(ctx context.Context, date string) ([]AttendanceRecord, error)
}

// AttendanceWriter provides append access to attendance records
type AttendanceWriter interface {
	AttendanceReader

	// AppendAttendance stores a new record. A second present record for the same
	// student, course and date is rejected with ErrDuplicateAttendance.
	AppendAttendance(ctx context.Context, record AttendanceRecord) error
}

// RosterWriter manages students, courses and enrollments
type RosterWriter interface {
	// CreateStudent stores a new student (enrollments are ignored)
	CreateStudent(ctx context.Context, student Student) error
	// CreateCourse stores a new course with its schedule, replacing an existing schedule
	CreateCourse(ctx context.Context, course Course) error
	// EnrollStudent links a student to a course; enrolling twice is a no-op
	EnrollStudent(ctx context.Context, studentID, courseID string) error
}

// Store is the persistent store used by the attendance core and the CLI
type Store interface {
	StudentReader
	CourseReader
	AttendanceWriter
	RosterWriter

	Close() error
}

// IdentityCache caches gallery embeddings by reference image content hash
type IdentityCache interface {
	// GetIdentity returns the cached identity or nil if not cached
	GetIdentity(ctx context.Context, contentHash string) (*StoredIdentity, error)
	// SaveIdentity stores or replaces a cached identity
	SaveIdentity(ctx context.Context, identity StoredIdentity) error
}
