package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/client"
	"github.com/fentz26/familydash/internal/controlplane"
	"github.com/fentz26/familydash/internal/models"
	"github.com/fentz26/familydash/internal/syncstate"
)

var (
	dayHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(cyanColor).
			MarginTop(1)

	todayHeaderStyle = dayHeaderStyle.
				Foreground(primaryColor).
				Underline(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Strikethrough(true)

	categoryColors = map[models.Category]lipgloss.Color{
		models.CategoryMeals:  lipgloss.Color("#F59E0B"),
		models.CategoryChores: lipgloss.Color("#10B981"),
		models.CategoryOther:  lipgloss.Color("#6366F1"),
	}
)

// row is one selectable instance in the week view.
type row struct {
	Date calendar.Date
	Item controlplane.DayItem
}

func flatten(view *controlplane.WeekView) []row {
	if view == nil {
		return nil
	}
	var rows []row
	for _, day := range view.Days {
		for _, item := range day.Items {
			rows = append(rows, row{Date: day.Date, Item: item})
		}
	}
	return rows
}

func renderWeek(view *controlplane.WeekView, rows []row, selected int, today calendar.Date, height int) string {
	if view == nil {
		return "\n  Loading week...\n"
	}

	var lines []string
	selLine := 0
	idx := 0
	for _, day := range view.Days {
		label := fmt.Sprintf("%s %s", day.Date.Weekday().String()[:3], day.Date.String())
		style := dayHeaderStyle
		if day.Date == today {
			style = todayHeaderStyle
			label += "  today"
		}
		lines = append(lines, style.Render(label))
		if len(day.Items) == 0 {
			lines = append(lines, helpStyle.Render("    nothing planned"))
		}
		for _, item := range day.Items {
			if idx == selected {
				selLine = len(lines)
			}
			lines = append(lines, renderItem(item, idx == selected))
			idx++
		}
	}

	if len(lines) > height && height > 0 {
		start := selLine - height/2
		if start < 0 {
			start = 0
		}
		end := start + height
		if end > len(lines) {
			end = len(lines)
			start = max(0, end-height)
		}
		lines = lines[start:end]
	}
	return strings.Join(lines, "\n")
}

func renderItem(item controlplane.DayItem, selected bool) string {
	check := "○"
	if item.Completed {
		check = "●"
	}
	title := item.Task.Title
	if item.Task.Type == models.TaskTypeRecurring {
		title += " ↻"
	}
	if item.Task.AssignedTo != "" {
		title += "  @" + item.Task.AssignedTo
	}

	if selected {
		return selectedStyle.Render(fmt.Sprintf("▶ %s %s", check, title))
	}
	mark := check
	if c, ok := categoryColors[item.Task.Category]; ok {
		mark = lipgloss.NewStyle().Foreground(c).Render(check)
	}
	if item.Completed {
		return taskItemStyle.Render(mark + " " + doneStyle.Render(title))
	}
	return taskItemStyle.Render(mark + " " + title)
}

// renderSync draws the connection and sync indicator.
func renderSync(s *client.SyncStatus, daemonOnline bool) string {
	if !daemonOnline || s == nil {
		return offlineStyle.Render("○ daemon offline")
	}
	st := s.State
	var out string
	switch {
	case !st.IsOnline:
		out = offlineStyle.Render("○ offline")
	case st.IsSyncing:
		out = lipgloss.NewStyle().Foreground(secondaryColor).Render("◌ syncing")
	case st.ConnectionStatus == syncstate.StatusError:
		out = lipgloss.NewStyle().Foreground(errorColor).Render("✗ sync error")
	case st.ConnectionStatus == syncstate.StatusConnecting:
		out = lipgloss.NewStyle().Foreground(warningColor).Render("◐ connecting")
	case st.ConnectionStatus == syncstate.StatusConnected:
		out = onlineStyle.Render("● synced " + formatAgo(st.LastSyncTime))
	default:
		out = offlineStyle.Render("○ disconnected")
	}
	if st.PendingChanges > 0 {
		out += lipgloss.NewStyle().Foreground(warningColor).Render(fmt.Sprintf("  %d pending", st.PendingChanges))
	}
	return out
}

func formatAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return t.Local().Format("Mon 15:04")
	}
}
