package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const attendanceColumns = "id, student_id, course_id, attendance_date, recorded_at, status"

// AppendAttendance stores a new record. Present records carry present_key, whose
// unique index rejects a second present record for the same student, course and day.
func (s *Store) AppendAttendance(ctx context.Context, record database.AttendanceRecord) error {
	if record.ID == "" {
		return errors.New("attendance record ID is required")
	}

	var presentKey sql.NullString
	if record.Status == database.StatusPresent {
		presentKey = sql.NullString{String: record.Key(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		s.Rebind("INSERT INTO attendance ("+attendanceColumns+", present_key) VALUES (?, ?, ?, ?, ?, ?, ?)"),
		record.ID, record.StudentID, record.CourseID, record.Date,
		toMillis(record.Timestamp), string(record.Status), presentKey,
	)
	if s.isUniqueViolation(err) {
		return fmt.Errorf("append %s: %w", record.Key(), database.ErrDuplicateAttendance)
	}
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// QueryAttendance returns all records of a student ordered by timestamp.
func (s *Store) QueryAttendance(ctx context.Context, studentID string) ([]database.AttendanceRecord, error) {
	return s.queryAttendance(ctx,
		"SELECT "+attendanceColumns+" FROM attendance WHERE student_id = ? ORDER BY recorded_at, id", studentID)
}

// ListAttendanceByDate returns all records of a calendar day ordered by timestamp.
func (s *Store) ListAttendanceByDate(ctx context.Context, date string) ([]database.AttendanceRecord, error) {
	return s.queryAttendance(ctx,
		"SELECT "+attendanceColumns+" FROM attendance WHERE attendance_date = ? ORDER BY recorded_at, id", date)
}

func (s *Store) queryAttendance(ctx context.Context, query string, args ...any) ([]database.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		var (
			r          database.AttendanceRecord
			recordedAt int64
			status     string
		)
		if err := rows.Scan(&r.ID, &r.StudentID, &r.CourseID, &r.Date, &recordedAt, &status); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		r.Timestamp = fromMillis(recordedAt)
		r.Status = database.AttendanceStatus(status)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}
