package roster

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

const sample = `
students:
  - student_id: "000004"
    name: Dana
    email: dana@example.com
  - student_id: "000005"
    name: Eli
courses:
  - course_id: CSE002
    name: Algorithms
    instructor: Dr. Lee
    sessions:
      - {day: sunday, start: "12:00", end: "13:00"}
      - {day: Tue, start: "09:00", end: "10:30"}
    students: ["000004", "000005"]
  - course_id: CSE001
    name: Intro
    sessions:
      - {day: monday, start: "08:00", end: "09:30"}
    students: ["000004"]
`

func TestParseAndApply(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.Students) != 2 || len(f.Courses) != 2 {
		t.Fatalf("unexpected roster %+v", f)
	}

	store := mock.NewMockStore()
	ctx := context.Background()
	stats, err := Apply(ctx, store, f)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := ApplyStats{StudentsCreated: 2, CoursesSaved: 2, Enrollments: 3}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}

	courses, err := store.GetCoursesForStudent(ctx, "000004")
	if err != nil {
		t.Fatal(err)
	}
	if len(courses) != 2 || courses[0].CourseID != "CSE001" {
		t.Fatalf("unexpected courses %+v", courses)
	}
	if w := courses[1].Schedule[time.Tuesday]; w.Start != "09:00" || w.End != "10:30" {
		t.Errorf("unexpected Tuesday window %+v", w)
	}

	// Re-applying keeps students and replaces schedules
	stats, err = Apply(ctx, store, f)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if stats.StudentsExisted != 2 || stats.StudentsCreated != 0 {
		t.Errorf("unexpected second stats %+v", stats)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"bad clock", `courses: [{course_id: A, name: A, sessions: [{day: monday, start: "9am", end: "10:00"}]}]`, "HH:MM"},
		{"bad day", `courses: [{course_id: A, name: A, sessions: [{day: someday, start: "09:00", end: "10:00"}]}]`, "weekday"},
		{"end before start", `courses: [{course_id: A, name: A, sessions: [{day: monday, start: "10:00", end: "09:00"}]}]`, "before it starts"},
		{"two sessions same day", `courses: [{course_id: A, name: A, sessions: [{day: mon, start: "09:00", end: "10:00"}, {day: monday, start: "11:00", end: "12:00"}]}]`, "more than one session"},
		{"duplicate student", `students: [{student_id: "1", name: A}, {student_id: "1", name: B}]`, "duplicate student"},
		{"missing name", `students: [{student_id: "1"}]`, "name"},
		{"bad email", `students: [{student_id: "1", name: A, email: nope}]`, "email"},
		{"unknown key", `students: [{student_id: "1", name: A, age: 3}]`, "age"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Students) != 0 || len(f.Courses) != 0 {
		t.Errorf("expected empty roster, got %+v", f)
	}
}

func TestApply_UnknownStudentEnrollment(t *testing.T) {
	f, err := Parse(strings.NewReader(`courses: [{course_id: A, name: A, students: ["ghost"]}]`))
	if err != nil {
		t.Fatal(err)
	}
	_, err = Apply(context.Background(), mock.NewMockStore(), f)
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
