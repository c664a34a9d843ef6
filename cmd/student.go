package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/validate"
	"github.com/spf13/cobra"
)

var studentCmd = &cobra.Command{
	Use:   "student",
	Short: "Manage students and enrollments",
}

var studentCreateCmd = &cobra.Command{
	Use:   "create <student-id>",
	Short: "Create a student",
	Long: `Create a student. The student ID must match the file name (without
extension) of the student's reference image in the gallery.`,
	Args: cobra.ExactArgs(1),
	RunE: runStudentCreate,
}

var studentEnrollCmd = &cobra.Command{
	Use:   "enroll <student-id> <course-id>...",
	Short: "Enroll a student in one or more courses",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runStudentEnroll,
}

var studentShowCmd = &cobra.Command{
	Use:   "show <student-id>",
	Short: "Show a student and their courses",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentShow,
}

func init() {
	rootCmd.AddCommand(studentCmd)
	studentCmd.AddCommand(studentCreateCmd)
	studentCmd.AddCommand(studentEnrollCmd)
	studentCmd.AddCommand(studentShowCmd)

	studentCreateCmd.Flags().String("name", "", "Full name (required)")
	studentCreateCmd.Flags().String("email", "", "Email address")
	_ = studentCreateCmd.MarkFlagRequired("name")
	studentShowCmd.Flags().Bool("json", false, "Output as JSON")
}

type studentInput struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
}

func runStudentCreate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	in := studentInput{
		StudentID: strings.TrimSpace(args[0]),
		Name:      strings.TrimSpace(mustGetString(cmd, "name")),
		Email:     strings.TrimSpace(mustGetString(cmd, "email")),
	}
	if err := validate.Struct(in); err != nil {
		return validate.Error(err)
	}

	ctx := context.Background()
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.store.CreateStudent(ctx, database.Student{StudentID: in.StudentID, Name: in.Name, Email: in.Email}); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	fmt.Printf("Created student %s (%s)\n", in.StudentID, in.Name)
	return nil
}

func runStudentEnroll(cmd *cobra.Command, args []string) error {
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

	studentID := args[0]
	for _, courseID := range args[1:] {
		if err := b.store.EnrollStudent(ctx, studentID, courseID); err != nil {
			return fmt.Errorf("enroll %s in %s: %w", studentID, courseID, err)
		}
		fmt.Printf("Enrolled %s in %s\n", studentID, courseID)
	}
	return nil
}

func runStudentShow(cmd *cobra.Command, args []string) error {
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

	student, err := b.store.GetStudent(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get student: %w", err)
	}
	courses, err := b.store.GetCoursesForStudent(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get courses: %w", err)
	}

	if mustGetBool(cmd, "json") {
		out := map[string]any{
			"student_id": student.StudentID,
			"name":       student.Name,
			"email":      student.Email,
			"courses":    courseOutputs(courses),
		}
		return outputJSON(out)
	}

	fmt.Printf("%s  %s", student.StudentID, student.Name)
	if student.Email != "" {
		fmt.Printf(" <%s>", student.Email)
	}
	fmt.Println()
	if len(courses) == 0 {
		fmt.Println("  Not enrolled in any course")
	}
	for _, c := range courses {
		printCourse(c, "  ")
	}
	return nil
}
