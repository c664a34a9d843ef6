package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/schedule"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Record and list attendance",
}

var attendanceMarkCmd = &cobra.Command{
	Use:   "mark <student-id>",
	Short: "Mark a student present as if recognized",
	Long: `Mark a student present for the course in session at --at (default now),
exactly as the recognition loop does. Marking twice for the same course and day
reports already_marked.

Examples:
  face-attendance attendance mark 000004
  face-attendance attendance mark 000004 --at 2024-01-07T12:05:00+01:00`,
	Args: cobra.ExactArgs(1),
	RunE: runAttendanceMark,
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attendance records of a day or a student",
	RunE:  runAttendanceList,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceMarkCmd)
	attendanceCmd.AddCommand(attendanceListCmd)

	attendanceMarkCmd.Flags().String("at", "", "Recognition time in RFC 3339 (default now)")
	attendanceMarkCmd.Flags().Bool("json", false, "Output as JSON")
	attendanceListCmd.Flags().String("date", "", "Day to list, YYYY-MM-DD (default today)")
	attendanceListCmd.Flags().String("student", "", "List all records of one student instead of a day")
	attendanceListCmd.Flags().Bool("json", false, "Output as JSON")
}

// MarkResult represents the result of a manual mark
type MarkResult struct {
	StudentID string `json:"student_id"`
	Outcome   string `json:"outcome"`
	CourseID  string `json:"course_id,omitempty"`
	Date      string `json:"date,omitempty"`
	RecordID  string `json:"record_id,omitempty"`
	At        string `json:"at"`
}

func runAttendanceMark(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	loc, _ := cfg.Location()

	ts := time.Now()
	if v := mustGetString(cmd, "at"); v != "" {
		if ts, err = time.Parse(time.RFC3339, v); err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}
	ts = ts.In(loc)

	ctx := context.Background()
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	guard, closeGuard, err := openGuard(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer closeGuard()

	resolver := schedule.NewResolver(b.store, cfg.Schedule.Grace, log)
	ledger := attendance.NewLedger(resolver, b.store, guard, log)

	res, err := ledger.Mark(ctx, args[0], ts)
	if err != nil {
		return err
	}

	out := MarkResult{
		StudentID: args[0],
		Outcome:   string(res.Outcome),
		CourseID:  res.CourseID,
		Date:      res.Date,
		At:        ts.Format(time.RFC3339),
	}
	if res.Record != nil {
		out.RecordID = res.Record.ID
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(out)
	}

	switch res.Outcome {
	case attendance.Marked:
		fmt.Printf("Marked %s present for %s on %s\n", out.StudentID, out.CourseID, out.Date)
	case attendance.AlreadyMarked:
		fmt.Printf("%s is already marked present for %s on %s\n", out.StudentID, out.CourseID, out.Date)
	case attendance.NoActiveCourse:
		fmt.Printf("%s has no course in session at %s\n", out.StudentID, out.At)
	}
	return nil
}

func runAttendanceList(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	loc, _ := cfg.Location()

	ctx := context.Background()
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	var records []database.AttendanceRecord
	if studentID := mustGetString(cmd, "student"); studentID != "" {
		records, err = b.store.QueryAttendance(ctx, studentID)
	} else {
		date := mustGetString(cmd, "date")
		if date == "" {
			date = time.Now().In(loc).Format(database.DateLayout)
		} else if _, perr := time.Parse(database.DateLayout, date); perr != nil {
			return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", date)
		}
		records, err = b.store.ListAttendanceByDate(ctx, date)
	}
	if err != nil {
		return fmt.Errorf("list attendance: %w", err)
	}

	if mustGetBool(cmd, "json") {
		type row struct {
			ID        string `json:"id"`
			StudentID string `json:"student_id"`
			CourseID  string `json:"course_id"`
			Date      string `json:"date"`
			Timestamp string `json:"timestamp"`
			Status    string `json:"status"`
		}
		rows := make([]row, 0, len(records))
		for _, r := range records {
			rows = append(rows, row{r.ID, r.StudentID, r.CourseID, r.Date, r.Timestamp.In(loc).Format(time.RFC3339), string(r.Status)})
		}
		return outputJSON(rows)
	}

	if len(records) == 0 {
		fmt.Println("No attendance records")
		return nil
	}
	fmt.Printf("%-10s %-8s %-10s %-10s %s\n", "DATE", "TIME", "STUDENT", "COURSE", "STATUS")
	for _, r := range records {
		fmt.Printf("%-10s %-8s %-10s %-10s %s\n",
			r.Date, r.Timestamp.In(loc).Format("15:04:05"), r.StudentID, r.CourseID, r.Status)
	}
	return nil
}
