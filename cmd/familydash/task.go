package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/models"
	"github.com/fentz26/familydash/internal/tui"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage household tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Long: `Creates a one-off task on --on (today by default), or a recurring task
when --every is given, e.g. --every mon,thu or --every weekdays.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRm,
}

var (
	taskOn       string
	taskEvery    string
	taskFrom     string
	taskUntil    string
	taskCategory string
	taskAssign   string
	taskNotes    string
	listArchived bool
)

func init() {
	taskAddCmd.Flags().StringVar(&taskOn, "on", "", "Due date YYYY-MM-DD for a one-off task (default today)")
	taskAddCmd.Flags().StringVar(&taskEvery, "every", "", "Weekdays for a recurring task: daily, weekdays, weekends or mon,wed,...")
	taskAddCmd.Flags().StringVar(&taskFrom, "from", "", "First date YYYY-MM-DD of a recurring task")
	taskAddCmd.Flags().StringVar(&taskUntil, "until", "", "Last date YYYY-MM-DD of a recurring task")
	taskAddCmd.Flags().StringVarP(&taskCategory, "category", "c", "", "Category: meals, chores or other")
	taskAddCmd.Flags().StringVarP(&taskAssign, "assign", "a", "", "Household member the task is assigned to")
	taskAddCmd.Flags().StringVar(&taskNotes, "notes", "", "Free-text notes")

	taskListCmd.Flags().BoolVar(&listArchived, "archived", false, "Include archived tasks")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskRmCmd)
}

func parseDateFlag(name, value string) (*calendar.Date, error) {
	if value == "" {
		return nil, nil
	}
	d, err := calendar.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &d, nil
}

// buildTask assembles a task from the add flags.
func buildTask(title string) (models.Task, error) {
	t := models.Task{
		Title:      title,
		Notes:      taskNotes,
		Category:   models.Category(taskCategory),
		AssignedTo: taskAssign,
	}

	if taskEvery == "" {
		if taskFrom != "" || taskUntil != "" {
			return t, fmt.Errorf("--from and --until need --every")
		}
		due, err := parseDateFlag("on", taskOn)
		if err != nil {
			return t, err
		}
		if due == nil {
			today := calendar.Today()
			due = &today
		}
		t.Type = models.TaskTypeOneOff
		t.DueDate = due
		return t, t.Validate()
	}

	if taskOn != "" {
		return t, fmt.Errorf("--on and --every are mutually exclusive")
	}
	days, err := tui.ParseDays(taskEvery)
	if err != nil {
		return t, err
	}
	rec := &models.Recurrence{Days: days}
	if rec.StartDate, err = parseDateFlag("from", taskFrom); err != nil {
		return t, err
	}
	if rec.EndDate, err = parseDateFlag("until", taskUntil); err != nil {
		return t, err
	}
	t.Type = models.TaskTypeRecurring
	t.Recurrence = rec
	return t, t.Validate()
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	t, err := buildTask(strings.Join(args, " "))
	if err != nil {
		return err
	}
	created, err := newClient().CreateTask(cmd.Context(), t)
	if err != nil {
		return err
	}
	fmt.Printf("Created task %s\n", created.ID)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	tasks, err := newClient().GetTasks(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tWHEN\tCATEGORY\tASSIGNED")
	shown := 0
	for _, t := range tasks {
		if t.Archived && !listArchived {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, truncate(t.Title, 40), when(t), t.Category, t.AssignedTo)
		shown++
	}
	if shown == 0 {
		fmt.Println("No tasks found")
		return nil
	}
	return w.Flush()
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	t, err := newClient().GetTask(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:        %s\n", t.ID)
	fmt.Printf("Title:     %s\n", t.Title)
	fmt.Printf("When:      %s\n", when(t))
	if t.Category != "" {
		fmt.Printf("Category:  %s\n", t.Category)
	}
	if t.AssignedTo != "" {
		fmt.Printf("Assigned:  %s\n", t.AssignedTo)
	}
	if t.Archived {
		fmt.Println("Archived:  yes")
	}
	fmt.Printf("Created:   %s\n", t.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if t.Notes != "" {
		fmt.Printf("Notes:     %s\n", t.Notes)
	}
	return nil
}

func runTaskRm(cmd *cobra.Command, args []string) error {
	if err := newClient().DeleteTask(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted task %s\n", args[0])
	return nil
}

// when describes the schedule of t in one short phrase.
func when(t models.Task) string {
	switch {
	case t.Type == models.TaskTypeRecurring && t.Recurrence != nil:
		s := "every " + weekdayList(t.Recurrence.Days)
		if t.Recurrence.StartDate != nil {
			s += " from " + t.Recurrence.StartDate.String()
		}
		if t.Recurrence.EndDate != nil {
			s += " until " + t.Recurrence.EndDate.String()
		}
		return s
	case t.DueDate != nil:
		return t.DueDate.String()
	default:
		return "-"
	}
}

var weekdayNames = [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

func weekdayList(days []int) string {
	names := make([]string, 0, len(days))
	for _, d := range days {
		if d >= 0 && d < len(weekdayNames) {
			names = append(names, weekdayNames[d])
		}
	}
	return strings.Join(names, ",")
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
