package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fentz26/familydash/internal/calendar"
	"github.com/spf13/cobra"
)

var weekStart string

var weekCmd = &cobra.Command{
	Use:   "week",
	Short: "Print the schedule of one week",
	Long:  `Prints every task instance of the week starting at --start, or of the current week starting Monday.`,
	Args:  cobra.NoArgs,
	RunE:  runWeek,
}

func init() {
	weekCmd.Flags().StringVar(&weekStart, "start", "", "First day YYYY-MM-DD of the week")
}

func runWeek(cmd *cobra.Command, args []string) error {
	var start calendar.Date
	if weekStart != "" {
		d, err := calendar.Parse(weekStart)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		start = d
	}

	view, err := newClient().Week(cmd.Context(), start)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tDONE\tTITLE\tCATEGORY\tASSIGNED\tID")
	for _, day := range view.Days {
		label := day.Date.Weekday().String()[:3] + " " + day.Date.String()
		if len(day.Items) == 0 {
			fmt.Fprintf(w, "%s\t\t-\t\t\t\n", label)
			continue
		}
		for _, item := range day.Items {
			done := " "
			if item.Completed {
				done = "x"
			}
			fmt.Fprintf(w, "%s\t[%s]\t%s\t%s\t%s\t%s\n", label, done, truncate(item.Task.Title, 40), item.Task.Category, item.Task.AssignedTo, item.Task.ID)
			label = ""
		}
	}
	return w.Flush()
}
