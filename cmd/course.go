package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/roster"
	"github.com/spf13/cobra"
)

var courseCmd = &cobra.Command{
	Use:   "course",
	Short: "Manage courses and weekly schedules",
}

var courseCreateCmd = &cobra.Command{
	Use:   "create <course-id>",
	Short: "Create a course or replace its schedule",
	Long: `Create a course with its weekly schedule. Each --session is DAY=HH:MM-HH:MM
and a course has at most one session per weekday. Running create again for an
existing course replaces its name, instructor and schedule; enrollments are kept.

Examples:
  face-attendance course create CSE002 --name Algorithms \
      --session sunday=12:00-13:00 --session tue=09:00-10:30`,
	Args: cobra.ExactArgs(1),
	RunE: runCourseCreate,
}

var courseImportCmd = &cobra.Command{
	Use:   "import <roster.yaml>",
	Short: "Import students, courses, schedules and enrollments from YAML",
	Long: `Import a roster file:

  students:
    - {student_id: "000004", name: Dana, email: dana@example.com}
  courses:
    - course_id: CSE002
      name: Algorithms
      instructor: Dr. Lee
      sessions:
        - {day: sunday, start: "12:00", end: "13:00"}
      students: ["000004"]

Existing students are kept, course schedules are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: runCourseImport,
}

var courseShowCmd = &cobra.Command{
	Use:   "show <course-id>",
	Short: "Show a course with its schedule and enrolled students",
	Args:  cobra.ExactArgs(1),
	RunE:  runCourseShow,
}

func init() {
	rootCmd.AddCommand(courseCmd)
	courseCmd.AddCommand(courseCreateCmd)
	courseCmd.AddCommand(courseImportCmd)
	courseCmd.AddCommand(courseShowCmd)

	courseCreateCmd.Flags().String("name", "", "Course name (required)")
	courseCreateCmd.Flags().String("instructor", "", "Instructor name")
	courseCreateCmd.Flags().StringSlice("session", nil, "Weekly session DAY=HH:MM-HH:MM (repeatable)")
	_ = courseCreateCmd.MarkFlagRequired("name")
	courseImportCmd.Flags().Bool("json", false, "Output as JSON")
	courseShowCmd.Flags().Bool("json", false, "Output as JSON")
}

// parseSessionFlag parses DAY=HH:MM-HH:MM.
func parseSessionFlag(s string) (roster.Session, error) {
	day, span, ok := strings.Cut(s, "=")
	if !ok {
		return roster.Session{}, fmt.Errorf("session %q: expected DAY=HH:MM-HH:MM", s)
	}
	start, end, ok := strings.Cut(span, "-")
	if !ok {
		return roster.Session{}, fmt.Errorf("session %q: expected DAY=HH:MM-HH:MM", s)
	}
	return roster.Session{
		Day:   strings.TrimSpace(day),
		Start: strings.TrimSpace(start),
		End:   strings.TrimSpace(end),
	}, nil
}

func runCourseCreate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	course := roster.Course{
		CourseID:   strings.TrimSpace(args[0]),
		Name:       strings.TrimSpace(mustGetString(cmd, "name")),
		Instructor: strings.TrimSpace(mustGetString(cmd, "instructor")),
	}
	for _, s := range mustGetStringSlice(cmd, "session") {
		session, err := parseSessionFlag(s)
		if err != nil {
			return err
		}
		course.Sessions = append(course.Sessions, session)
	}
	// Same rules as roster files.
	if err := roster.Validate(&roster.File{Courses: []roster.Course{course}}); err != nil {
		return err
	}

	ctx := context.Background()
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	c := course.ToCourse()
	if err := b.store.CreateCourse(ctx, c); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	fmt.Println("Saved course")
	printCourse(c, "  ")
	return nil
}

func runCourseImport(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f, err := roster.ParseFile(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	stats, err := roster.Apply(ctx, b.store, f)
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(stats)
	}
	fmt.Println("Roster imported")
	fmt.Printf("  Students created: %d\n", stats.StudentsCreated)
	fmt.Printf("  Students kept:    %d\n", stats.StudentsExisted)
	fmt.Printf("  Courses saved:    %d\n", stats.CoursesSaved)
	fmt.Printf("  Enrollments:      %d\n", stats.Enrollments)
	return nil
}

func runCourseShow(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	c, err := b.store.GetCourse(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get course: %w", err)
	}
	if mustGetBool(cmd, "json") {
		out := courseOutputs([]database.Course{*c})[0]
		out.Students = c.EnrolledStudentIDs
		return outputJSON(out)
	}
	printCourse(*c, "")
	if len(c.EnrolledStudentIDs) > 0 {
		fmt.Printf("  Students: %s\n", strings.Join(c.EnrolledStudentIDs, ", "))
	}
	return nil
}

type sessionOutput struct {
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type courseOutput struct {
	CourseID   string          `json:"course_id"`
	Name       string          `json:"name"`
	Instructor string          `json:"instructor,omitempty"`
	Sessions   []sessionOutput `json:"sessions"`
	Students   []string        `json:"students,omitempty"`
}

func sortedDays(schedule map[time.Weekday]database.SessionWindow) []time.Weekday {
	days := make([]time.Weekday, 0, len(schedule))
	for d := range schedule {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

func courseOutputs(courses []database.Course) []courseOutput {
	out := make([]courseOutput, 0, len(courses))
	for _, c := range courses {
		co := courseOutput{CourseID: c.CourseID, Name: c.Name, Instructor: c.Instructor, Sessions: []sessionOutput{}}
		for _, d := range sortedDays(c.Schedule) {
			w := c.Schedule[d]
			co.Sessions = append(co.Sessions, sessionOutput{Day: strings.ToLower(d.String()), Start: w.Start, End: w.End})
		}
		out = append(out, co)
	}
	return out
}

func printCourse(c database.Course, indent string) {
	fmt.Printf("%s%s  %s", indent, c.CourseID, c.Name)
	if c.Instructor != "" {
		fmt.Printf(" (%s)", c.Instructor)
	}
	fmt.Println()
	for _, d := range sortedDays(c.Schedule) {
		w := c.Schedule[d]
		fmt.Printf("%s  %-9s %s-%s\n", indent, d, w.Start, w.End)
	}
}
