package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// CreateCourse stores a course with its schedule. An existing course keeps its
// enrollments but gets its details and schedule replaced.
func (s *Store) CreateCourse(ctx context.Context, course database.Course) error {
	if course.CourseID == "" {
		return errors.New("course ID is required")
	}
	createdAt := course.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, "SELECT 1 FROM courses WHERE course_id = ?", course.CourseID)
		if err != nil {
			return fmt.Errorf("check course: %w", err)
		}

		if ok {
			_, err = tx.ExecContext(ctx,
				s.Rebind("UPDATE courses SET name = ?, instructor = ? WHERE course_id = ?"),
				course.Name, course.Instructor, course.CourseID,
			)
		} else {
			_, err = tx.ExecContext(ctx,
				s.Rebind("INSERT INTO courses (course_id, name, instructor, created_at) VALUES (?, ?, ?, ?)"),
				course.CourseID, course.Name, course.Instructor, toMillis(createdAt),
			)
		}
		if err != nil {
			return fmt.Errorf("save course: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			s.Rebind("DELETE FROM course_sessions WHERE course_id = ?"), course.CourseID,
		); err != nil {
			return fmt.Errorf("clear course sessions: %w", err)
		}

		for _, day := range sortedWeekdays(course.Schedule) {
			w := course.Schedule[day]
			if _, err := tx.ExecContext(ctx,
				s.Rebind("INSERT INTO course_sessions (course_id, weekday, start_time, end_time) VALUES (?, ?, ?, ?)"),
				course.CourseID, int(day), w.Start, w.End,
			); err != nil {
				return fmt.Errorf("insert course session %s: %w", day, err)
			}
		}
		return nil
	})
}

// GetCourse retrieves a course with its schedule and enrolled students.
func (s *Store) GetCourse(ctx context.Context, courseID string) (*database.Course, error) {
	courses, err := s.loadCourses(ctx,
		"SELECT course_id, name, instructor, created_at FROM courses WHERE course_id = ?", courseID)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, fmt.Errorf("course %s: %w", courseID, database.ErrNotFound)
	}
	c := &courses[0]

	rows, err := s.db.QueryContext(ctx,
		s.Rebind("SELECT student_id FROM enrollments WHERE course_id = ? ORDER BY student_id"), courseID)
	if err != nil {
		return nil, fmt.Errorf("query enrolled students: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan enrolled student: %w", err)
		}
		c.EnrolledStudentIDs = append(c.EnrolledStudentIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrolled students: %w", err)
	}
	return c, nil
}

// GetCoursesForStudent returns the courses a student is enrolled in, ordered by course ID.
func (s *Store) GetCoursesForStudent(ctx context.Context, studentID string) ([]database.Course, error) {
	return s.loadCourses(ctx, `
		SELECT c.course_id, c.name, c.instructor, c.created_at
		FROM courses c
		JOIN enrollments e ON e.course_id = c.course_id
		WHERE e.student_id = ?
		ORDER BY c.course_id
	`, studentID)
}

// loadCourses runs a course query and attaches schedules.
func (s *Store) loadCourses(ctx context.Context, query string, args ...any) ([]database.Course, error) {
	rows, err := s.db.QueryContext(ctx, s.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	var courses []database.Course
	for rows.Next() {
		var (
			c         database.Course
			createdAt int64
		)
		if err := rows.Scan(&c.CourseID, &c.Name, &c.Instructor, &createdAt); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		c.CreatedAt = fromMillis(createdAt)
		c.Schedule = make(map[time.Weekday]database.SessionWindow)
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	if len(courses) == 0 {
		return nil, nil
	}

	if err := s.attachSchedules(ctx, courses); err != nil {
		return nil, err
	}
	return courses, nil
}

func (s *Store) attachSchedules(ctx context.Context, courses []database.Course) error {
	byID := make(map[string]*database.Course, len(courses))
	ids := make([]any, 0, len(courses))
	for i := range courses {
		byID[courses[i].CourseID] = &courses[i]
		ids = append(ids, courses[i].CourseID)
	}

	query := "SELECT course_id, weekday, start_time, end_time FROM course_sessions WHERE course_id IN (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + ")"

	rows, err := s.db.QueryContext(ctx, s.Rebind(query), ids...)
	if err != nil {
		return fmt.Errorf("query course sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			courseID string
			weekday  int
			w        database.SessionWindow
		)
		if err := rows.Scan(&courseID, &weekday, &w.Start, &w.End); err != nil {
			return fmt.Errorf("scan course session: %w", err)
		}
		if c, ok := byID[courseID]; ok {
			c.Schedule[time.Weekday(weekday)] = w
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate course sessions: %w", err)
	}
	return nil
}

func sortedWeekdays(schedule map[time.Weekday]database.SessionWindow) []time.Weekday {
	days := make([]time.Weekday, 0, len(schedule))
	for d := range schedule {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}
