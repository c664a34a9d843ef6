// Package mock provides an in-memory implementation of the database interfaces
// used by tests and by the CLI's memory store.
package mock

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MockStore is an in-memory implementation of database.Store
type MockStore struct {
	mu          sync.RWMutex
	students    map[string]*database.Student
	courses     map[string]*database.Course
	enrollments map[string]map[string]struct{} // student ID -> course IDs
	attendance  []database.AttendanceRecord
	presentKeys map[string]struct{}
	identities  map[string]database.StoredIdentity

	// Error injection
	GetStudentError       error
	GetCoursesError       error
	QueryAttendanceError  error
	AppendAttendanceError error

	// SkipUniqueCheck disables the present-key constraint so tests can observe
	// what the ledger alone guarantees.
	SkipUniqueCheck bool

	// AppendCalls counts AppendAttendance invocations (including rejected ones)
	AppendCalls int
}

var (
	_ database.Store         = (*MockStore)(nil)
	_ database.IdentityCache = (*MockStore)(nil)
)

// NewMockStore creates a new empty in-memory store
func NewMockStore() *MockStore {
	return &MockStore{
		students:    make(map[string]*database.Student),
		courses:     make(map[string]*database.Course),
		enrollments: make(map[string]map[string]struct{}),
		presentKeys: make(map[string]struct{}),
		identities:  make(map[string]database.StoredIdentity),
	}
}

// CreateStudent stores a student
func (m *MockStore) CreateStudent(ctx context.Context, student database.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[student.StudentID]; ok {
		return fmt.Errorf("student %s already exists", student.StudentID)
	}
	s := student
	s.EnrolledCourseIDs = nil
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.students[s.StudentID] = &s
	return nil
}

// CreateCourse stores a course, replacing the schedule of an existing one
func (m *MockStore) CreateCourse(ctx context.Context, course database.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := course
	c.EnrolledStudentIDs = nil
	c.Schedule = maps.Clone(course.Schedule)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.courses[c.CourseID] = &c
	return nil
}

// EnrollStudent links a student to a course
func (m *MockStore) EnrollStudent(ctx context.Context, studentID, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[studentID]; !ok {
		return fmt.Errorf("student %s: %w", studentID, database.ErrNotFound)
	}
	if _, ok := m.courses[courseID]; !ok {
		return fmt.Errorf("course %s: %w", courseID, database.ErrNotFound)
	}
	if m.enrollments[studentID] == nil {
		m.enrollments[studentID] = make(map[string]struct{})
	}
	m.enrollments[studentID][courseID] = struct{}{}
	return nil
}

// GetStudent retrieves a student with enrolled course IDs
func (m *MockStore) GetStudent(ctx context.Context, studentID string) (*database.Student, error) {
	if m.GetStudentError != nil {
		return nil, m.GetStudentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[studentID]
	if !ok {
		return nil, fmt.Errorf("student %s: %w", studentID, database.ErrNotFound)
	}
	out := *s
	out.EnrolledCourseIDs = slices.Sorted(maps.Keys(m.enrollments[studentID]))
	return &out, nil
}

// GetCourse retrieves a course with enrolled students
func (m *MockStore) GetCourse(ctx context.Context, courseID string) (*database.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[courseID]
	if !ok {
		return nil, fmt.Errorf("course %s: %w", courseID, database.ErrNotFound)
	}
	return m.courseCopy(c), nil
}

// GetCoursesForStudent returns enrolled courses ordered by course ID
func (m *MockStore) GetCoursesForStudent(ctx context.Context, studentID string) ([]database.Course, error) {
	if m.GetCoursesError != nil {
		return nil, m.GetCoursesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var courses []database.Course
	for _, id := range slices.Sorted(maps.Keys(m.enrollments[studentID])) {
		if c, ok := m.courses[id]; ok {
			courses = append(courses, *m.courseCopy(c))
		}
	}
	return courses, nil
}

// courseCopy must be called with the lock held
func (m *MockStore) courseCopy(c *database.Course) *database.Course {
	out := *c
	out.Schedule = maps.Clone(c.Schedule)
	out.EnrolledStudentIDs = nil
	for studentID, courses := range m.enrollments {
		if _, ok := courses[c.CourseID]; ok {
			out.EnrolledStudentIDs = append(out.EnrolledStudentIDs, studentID)
		}
	}
	sort.Strings(out.EnrolledStudentIDs)
	return &out
}

// QueryAttendance returns a student's records ordered by timestamp
func (m *MockStore) QueryAttendance(ctx context.Context, studentID string) ([]database.AttendanceRecord, error) {
	if m.QueryAttendanceError != nil {
		return nil, m.QueryAttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.AttendanceRecord
	for _, r := range m.attendance {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

// ListAttendanceByDate returns all records for a calendar day
func (m *MockStore) ListAttendanceByDate(ctx context.Context, date string) ([]database.AttendanceRecord, error) {
	if m.QueryAttendanceError != nil {
		return nil, m.QueryAttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.AttendanceRecord
	for _, r := range m.attendance {
		if r.Date == date {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

// AppendAttendance appends a record enforcing the present-key constraint
func (m *MockStore) AppendAttendance(ctx context.Context, record database.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls++

	if m.AppendAttendanceError != nil {
		return m.AppendAttendanceError
	}
	if record.Status == database.StatusPresent && !m.SkipUniqueCheck {
		key := record.Key()
		if _, ok := m.presentKeys[key]; ok {
			return fmt.Errorf("append %s: %w", key, database.ErrDuplicateAttendance)
		}
		m.presentKeys[key] = struct{}{}
	}
	m.attendance = append(m.attendance, record)
	return nil
}

// Records returns a copy of all stored attendance records in insertion order
func (m *MockStore) Records() []database.AttendanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.attendance)
}

// GetIdentity returns a cached identity or nil
func (m *MockStore) GetIdentity(ctx context.Context, contentHash string) (*database.StoredIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.identities[contentHash]; ok {
		return &id, nil
	}
	return nil, nil
}

// SaveIdentity stores a cached identity
func (m *MockStore) SaveIdentity(ctx context.Context, identity database.StoredIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.ContentHash] = identity
	return nil
}

// Close is a no-op
func (m *MockStore) Close() error {
	return nil
}

func sortRecords(records []database.AttendanceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}
