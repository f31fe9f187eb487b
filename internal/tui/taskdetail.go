package tui

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/recurrence"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))
)

var dayAbbrev = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// renderDetail describes the selected instance and its task definition.
func renderDetail(r row, today calendar.Date) string {
	t := r.Item.Task
	var b strings.Builder

	b.WriteString(headerStyle.Render(t.Title) + "\n\n")
	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}

	field("ID", t.ID)
	field("Date", r.Date.String())
	status := "open"
	if r.Item.Completed {
		status = "done"
	}
	field("Status", status)
	field("Type", string(t.Type))
	field("Category", string(t.Category))
	field("Assigned", t.AssignedTo)
	if t.DueDate != nil {
		field("Due", t.DueDate.String())
	}
	if rec := t.Recurrence; rec != nil {
		days := append([]int(nil), rec.Days...)
		sort.Ints(days)
		names := make([]string, 0, len(days))
		for _, d := range days {
			if d >= 0 && d < len(dayAbbrev) {
				names = append(names, dayAbbrev[d])
			}
		}
		field("Repeats", strings.Join(names, ", "))
		if rec.StartDate != nil {
			field("From", rec.StartDate.String())
		}
		if rec.EndDate != nil {
			field("Until", rec.EndDate.String())
		}
		if next, ok := recurrence.NextInstance(t, today); ok {
			field("Next", next.String())
		}
	}
	if !t.CreatedAt.IsZero() {
		field("Created", t.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	if t.Notes != "" {
		b.WriteString("\n" + valueStyle.Render(t.Notes) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("space: toggle done  ·  Esc: back"))
	return b.String()
}
