package sqlstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/sqlite"
	"github.com/kozaktomas/face-attendance/internal/database/sqlstore"
)

func setupStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRoster(t *testing.T, store *sqlstore.Store) {
	t.Helper()
	ctx := context.Background()

	if err := store.CreateStudent(ctx, database.Student{StudentID: "000004", Name: "Dana", Email: "dana@example.com"}); err != nil {
		t.Fatalf("create student: %v", err)
	}
	courses := []database.Course{
		{
			CourseID: "CSE002", Name: "Algorithms", Instructor: "Dr. Lee",
			Schedule: map[time.Weekday]database.SessionWindow{
				time.Sunday:  {Start: "12:00", End: "13:00"},
				time.Tuesday: {Start: "09:00", End: "10:00"},
			},
		},
		{
			CourseID: "CSE001", Name: "Intro", Instructor: "Dr. Kim",
			Schedule: map[time.Weekday]database.SessionWindow{
				time.Monday: {Start: "08:00", End: "09:30"},
			},
		},
	}
	for _, c := range courses {
		if err := store.CreateCourse(ctx, c); err != nil {
			t.Fatalf("create course %s: %v", c.CourseID, err)
		}
		if err := store.EnrollStudent(ctx, "000004", c.CourseID); err != nil {
			t.Fatalf("enroll %s: %v", c.CourseID, err)
		}
	}
}

func TestMigrationsApplied(t *testing.T) {
	store := setupStore(t)

	versions, err := sqlstore.MigrationsApplied(context.Background(), store.DB())
	if err != nil {
		t.Fatalf("migrations applied: %v", err)
	}
	if len(versions) != 1 || versions[0] != "001_init.sql" {
		t.Errorf("expected [001_init.sql], got %v", versions)
	}

	// Re-running is a no-op
	if err := sqlite.Migrate(context.Background(), store.DB()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	versions, _ = sqlstore.MigrationsApplied(context.Background(), store.DB())
	if len(versions) != 1 {
		t.Errorf("expected 1 migration after re-run, got %d", len(versions))
	}
}

func TestStudentsAndEnrollments(t *testing.T) {
	store := setupStore(t)
	seedRoster(t, store)
	ctx := context.Background()

	st, err := store.GetStudent(ctx, "000004")
	if err != nil {
		t.Fatalf("get student: %v", err)
	}
	if st.Name != "Dana" || st.Email != "dana@example.com" {
		t.Errorf("unexpected student %+v", st)
	}
	want := []string{"CSE001", "CSE002"}
	if len(st.EnrolledCourseIDs) != len(want) {
		t.Fatalf("expected %v, got %v", want, st.EnrolledCourseIDs)
	}
	for i := range want {
		if st.EnrolledCourseIDs[i] != want[i] {
			t.Errorf("enrolled[%d] = %s, want %s", i, st.EnrolledCourseIDs[i], want[i])
		}
	}

	// Enrolling twice is a no-op
	if err := store.EnrollStudent(ctx, "000004", "CSE002"); err != nil {
		t.Errorf("repeat enroll: %v", err)
	}
	course, err := store.GetCourse(ctx, "CSE002")
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	if len(course.EnrolledStudentIDs) != 1 || course.EnrolledStudentIDs[0] != "000004" {
		t.Errorf("expected single enrolled student, got %v", course.EnrolledStudentIDs)
	}

	if _, err := store.GetStudent(ctx, "missing"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.EnrollStudent(ctx, "missing", "CSE002"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing student, got %v", err)
	}
	if err := store.EnrollStudent(ctx, "000004", "NOPE"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing course, got %v", err)
	}
	if err := store.CreateStudent(ctx, database.Student{StudentID: "000004"}); err == nil {
		t.Error("expected error for duplicate student")
	}
}

func TestCoursesForStudent_OrderedWithSchedules(t *testing.T) {
	store := setupStore(t)
	seedRoster(t, store)

	courses, err := store.GetCoursesForStudent(context.Background(), "000004")
	if err != nil {
		t.Fatalf("courses for student: %v", err)
	}
	if len(courses) != 2 {
		t.Fatalf("expected 2 courses, got %d", len(courses))
	}
	if courses[0].CourseID != "CSE001" || courses[1].CourseID != "CSE002" {
		t.Errorf("expected course_id order, got %s, %s", courses[0].CourseID, courses[1].CourseID)
	}
	w, ok := courses[1].Schedule[time.Sunday]
	if !ok || w.Start != "12:00" || w.End != "13:00" {
		t.Errorf("unexpected Sunday window %+v (ok=%v)", w, ok)
	}
	if len(courses[1].Schedule) != 2 {
		t.Errorf("expected 2 windows, got %d", len(courses[1].Schedule))
	}

	none, err := store.GetCoursesForStudent(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no courses, got %d", len(none))
	}
}

func TestCreateCourse_ReplacesSchedule(t *testing.T) {
	store := setupStore(t)
	seedRoster(t, store)
	ctx := context.Background()

	err := store.CreateCourse(ctx, database.Course{
		CourseID: "CSE002", Name: "Algorithms II", Instructor: "Dr. Lee",
		Schedule: map[time.Weekday]database.SessionWindow{
			time.Friday: {Start: "14:00", End: "15:30"},
		},
	})
	if err != nil {
		t.Fatalf("update course: %v", err)
	}

	course, err := store.GetCourse(ctx, "CSE002")
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	if course.Name != "Algorithms II" {
		t.Errorf("expected updated name, got %q", course.Name)
	}
	if len(course.Schedule) != 1 {
		t.Errorf("expected schedule replaced, got %v", course.Schedule)
	}
	if len(course.EnrolledStudentIDs) != 1 {
		t.Errorf("enrollments should survive update, got %v", course.EnrolledStudentIDs)
	}
}

func TestAppendAttendance_PresentUnique(t *testing.T) {
	store := setupStore(t)
	seedRoster(t, store)
	ctx := context.Background()

	ts := time.Date(2024, 1, 7, 12, 5, 0, 0, time.UTC)
	rec := database.AttendanceRecord{
		ID: uuid.NewString(), StudentID: "000004", CourseID: "CSE002",
		Date: "2024-01-07", Timestamp: ts, Status: database.StatusPresent,
	}
	if err := store.AppendAttendance(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	dup := rec
	dup.ID = uuid.NewString()
	dup.Timestamp = ts.Add(25 * time.Minute)
	if err := store.AppendAttendance(ctx, dup); !errors.Is(err, database.ErrDuplicateAttendance) {
		t.Errorf("expected ErrDuplicateAttendance, got %v", err)
	}

	// Absent records carry no present key
	absent := rec
	absent.ID = uuid.NewString()
	absent.Status = database.StatusAbsent
	if err := store.AppendAttendance(ctx, absent); err != nil {
		t.Errorf("append absent: %v", err)
	}

	records, err := store.QueryAttendance(ctx, "000004")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].Timestamp.Equal(ts) {
		t.Errorf("timestamp round trip: got %v want %v", records[0].Timestamp, ts)
	}

	byDate, err := store.ListAttendanceByDate(ctx, "2024-01-07")
	if err != nil {
		t.Fatalf("list by date: %v", err)
	}
	if len(byDate) != 2 {
		t.Errorf("expected 2 records for date, got %d", len(byDate))
	}
	other, _ := store.ListAttendanceByDate(ctx, "2024-01-08")
	if len(other) != 0 {
		t.Errorf("expected no records for other date, got %d", len(other))
	}
}

func TestAppendAttendance_Concurrent(t *testing.T) {
	store := setupStore(t)
	seedRoster(t, store)
	ctx := context.Background()

	const workers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		ok, dupes  int
		unexpected []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.AppendAttendance(ctx, database.AttendanceRecord{
				ID: uuid.NewString(), StudentID: "000004", CourseID: "CSE002",
				Date: "2024-01-07", Timestamp: time.Now(), Status: database.StatusPresent,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, database.ErrDuplicateAttendance):
				dupes++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	if len(unexpected) > 0 {
		t.Fatalf("unexpected errors: %v", unexpected)
	}
	if ok != 1 || dupes != workers-1 {
		t.Errorf("expected 1 insert and %d duplicates, got %d and %d", workers-1, ok, dupes)
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect sqlstore.Dialect
		query   string
		want    string
	}{
		{"question marks kept", sqlstore.Dialect{}, "SELECT 1 WHERE a = ? AND b = ?", "SELECT 1 WHERE a = ? AND b = ?"},
		{"numbered", sqlstore.Dialect{NumberedPlaceholders: true}, "SELECT 1 WHERE a = ? AND b = ?", "SELECT 1 WHERE a = $1 AND b = $2"},
		{"no placeholders", sqlstore.Dialect{NumberedPlaceholders: true}, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sqlstore.Rebind(tt.dialect, tt.query); got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	content := `-- header comment
CREATE TABLE a (
    id INT
);

-- second
CREATE INDEX idx ON a(id);
INSERT INTO a VALUES (1)`

	stmts := sqlstore.SplitStatements(content)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[1] != "CREATE INDEX idx ON a(id)" {
		t.Errorf("unexpected second statement %q", stmts[1])
	}
}
