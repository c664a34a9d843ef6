package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// CreateStudent stores a new student. Enrollments on the value are ignored.
func (s *Store) CreateStudent(ctx context.Context, student database.Student) error {
	if student.StudentID == "" {
		return errors.New("student ID is required")
	}
	createdAt := student.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		s.Rebind("INSERT INTO students (student_id, name, email, created_at) VALUES (?, ?, ?, ?)"),
		student.StudentID, student.Name, student.Email, toMillis(createdAt),
	)
	if s.isUniqueViolation(err) {
		return fmt.Errorf("student %s already exists", student.StudentID)
	}
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

// GetStudent retrieves a student with enrolled course IDs.
func (s *Store) GetStudent(ctx context.Context, studentID string) (*database.Student, error) {
	var (
		st        database.Student
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.Rebind("SELECT student_id, name, email, created_at FROM students WHERE student_id = ?"),
		studentID,
	).Scan(&st.StudentID, &st.Name, &st.Email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s: %w", studentID, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	st.CreatedAt = fromMillis(createdAt)

	rows, err := s.db.QueryContext(ctx,
		s.Rebind("SELECT course_id FROM enrollments WHERE student_id = ? ORDER BY course_id"),
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var courseID string
		if err := rows.Scan(&courseID); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		st.EnrolledCourseIDs = append(st.EnrolledCourseIDs, courseID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}

	return &st, nil
}

// EnrollStudent links a student to a course. Enrolling twice is a no-op.
func (s *Store) EnrollStudent(ctx context.Context, studentID, courseID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, "SELECT 1 FROM students WHERE student_id = ?", studentID)
		if err != nil {
			return fmt.Errorf("check student: %w", err)
		}
		if !ok {
			return fmt.Errorf("student %s: %w", studentID, database.ErrNotFound)
		}

		ok, err = s.exists(ctx, tx, "SELECT 1 FROM courses WHERE course_id = ?", courseID)
		if err != nil {
			return fmt.Errorf("check course: %w", err)
		}
		if !ok {
			return fmt.Errorf("course %s: %w", courseID, database.ErrNotFound)
		}

		ok, err = s.exists(ctx, tx,
			"SELECT 1 FROM enrollments WHERE student_id = ? AND course_id = ?", studentID, courseID)
		if err != nil {
			return fmt.Errorf("check enrollment: %w", err)
		}
		if ok {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			s.Rebind("INSERT INTO enrollments (student_id, course_id, created_at) VALUES (?, ?, ?)"),
			studentID, courseID, toMillis(time.Now()),
		)
		if s.isUniqueViolation(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("insert enrollment: %w", err)
		}
		return nil
	})
}
