// Package roster imports students, courses, schedules and enrollments from YAML.
package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/validate"
	"gopkg.in/yaml.v3"
)

// File is the YAML document layout.
type File struct {
	Students []Student `yaml:"students" validate:"dive"`
	Courses  []Course  `yaml:"courses" validate:"dive"`
}

type Student struct {
	StudentID string `yaml:"student_id" validate:"required,max=64"`
	Name      string `yaml:"name" validate:"required"`
	Email     string `yaml:"email" validate:"omitempty,email"`
}

type Course struct {
	CourseID   string    `yaml:"course_id" validate:"required,max=64"`
	Name       string    `yaml:"name" validate:"required"`
	Instructor string    `yaml:"instructor"`
	Sessions   []Session `yaml:"sessions" validate:"dive"`
	Students   []string  `yaml:"students" validate:"dive,required"`
}

type Session struct {
	Day   string `yaml:"day" validate:"required,weekday"`
	Start string `yaml:"start" validate:"required,clock"`
	End   string `yaml:"end" validate:"required,clock"`
}

// Parse decodes and validates a roster document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	if err := Validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks field formats and cross-entry rules.
func Validate(f *File) error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("invalid roster: %w", validate.Error(err))
	}
	if err := f.check(); err != nil {
		return fmt.Errorf("invalid roster: %w", err)
	}
	return nil
}

// ParseFile reads a roster from path.
func ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// check enforces rules the struct tags cannot express.
func (f *File) check() error {
	var errs []error
	seen := make(map[string]bool)
	for _, s := range f.Students {
		if seen[s.StudentID] {
			errs = append(errs, fmt.Errorf("duplicate student %s", s.StudentID))
		}
		seen[s.StudentID] = true
	}
	courses := make(map[string]bool)
	for _, c := range f.Courses {
		if courses[c.CourseID] {
			errs = append(errs, fmt.Errorf("duplicate course %s", c.CourseID))
		}
		courses[c.CourseID] = true

		days := make(map[time.Weekday]bool)
		for _, s := range c.Sessions {
			day, _ := database.ParseWeekday(s.Day)
			if days[day] {
				errs = append(errs, fmt.Errorf("course %s: more than one session on %s", c.CourseID, day))
			}
			days[day] = true
			start, _ := time.Parse(database.ClockLayout, s.Start)
			end, _ := time.Parse(database.ClockLayout, s.End)
			if !end.After(start) {
				errs = append(errs, fmt.Errorf("course %s: %s session ends at %s before it starts at %s",
					c.CourseID, day, s.End, s.Start))
			}
		}
	}
	return errors.Join(errs...)
}

// ToCourse converts an imported course to the store model.
func (c Course) ToCourse() database.Course {
	schedule := make(map[time.Weekday]database.SessionWindow, len(c.Sessions))
	for _, s := range c.Sessions {
		day, _ := database.ParseWeekday(s.Day)
		schedule[day] = database.SessionWindow{Start: s.Start, End: s.End}
	}
	return database.Course{
		CourseID:   c.CourseID,
		Name:       c.Name,
		Instructor: c.Instructor,
		Schedule:   schedule,
	}
}

// Store is what Apply writes to.
type Store interface {
	database.StudentReader
	database.RosterWriter
}

// ApplyStats counts what Apply changed.
type ApplyStats struct {
	StudentsCreated int `json:"students_created"`
	StudentsExisted int `json:"students_existed"`
	CoursesSaved    int `json:"courses_saved"`
	Enrollments     int `json:"enrollments"`
}

// Apply writes the roster to the store. Existing students are kept, courses
// are created or have their schedule replaced, enrollments are added.
func Apply(ctx context.Context, store Store, f *File) (ApplyStats, error) {
	var stats ApplyStats

	for _, s := range f.Students {
		_, err := store.GetStudent(ctx, s.StudentID)
		switch {
		case err == nil:
			stats.StudentsExisted++
			continue
		case !errors.Is(err, database.ErrNotFound):
			return stats, fmt.Errorf("get student %s: %w", s.StudentID, err)
		}
		if err := store.CreateStudent(ctx, database.Student{StudentID: s.StudentID, Name: s.Name, Email: s.Email}); err != nil {
			return stats, fmt.Errorf("create student %s: %w", s.StudentID, err)
		}
		stats.StudentsCreated++
	}

	courses := append([]Course(nil), f.Courses...)
	sort.Slice(courses, func(i, j int) bool { return courses[i].CourseID < courses[j].CourseID })
	for _, c := range courses {
		if err := store.CreateCourse(ctx, c.ToCourse()); err != nil {
			return stats, fmt.Errorf("save course %s: %w", c.CourseID, err)
		}
		stats.CoursesSaved++
		for _, studentID := range c.Students {
			if err := store.EnrollStudent(ctx, studentID, c.CourseID); err != nil {
				return stats, fmt.Errorf("enroll %s in %s: %w", studentID, c.CourseID, err)
			}
			stats.Enrollments++
		}
	}
	return stats, nil
}
