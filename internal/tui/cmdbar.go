package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/models"
)

var (
	cmdBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
)

// requestTimeout bounds each backend call made from the UI.
const requestTimeout = 10 * time.Second

// CmdBarModel manages the command input bar
type CmdBarModel struct {
	input   textinput.Model
	focused bool
}

// NewCmdBarModel creates a new command bar
func NewCmdBarModel() *CmdBarModel {
	ti := textinput.New()
	ti.Placeholder = "add <title> [on YYYY-MM-DD] | every mon,wed <title> | meal <title> | rm | done | sync"
	ti.CharLimit = 256
	ti.Prompt = ""
	return &CmdBarModel{
		input: ti,
	}
}

// Focused reports whether the bar has input focus.
func (m *CmdBarModel) Focused() bool {
	return m.focused
}

// Focus focuses the command bar
func (m *CmdBarModel) Focus() tea.Cmd {
	m.focused = true
	return m.input.Focus()
}

// Blur unfocuses the command bar
func (m *CmdBarModel) Blur() {
	m.focused = false
	m.input.Blur()
	m.input.SetValue("")
}

// Value returns the current input.
func (m *CmdBarModel) Value() string {
	return m.input.Value()
}

// SetValue replaces the current input.
func (m *CmdBarModel) SetValue(s string) {
	m.input.SetValue(s)
	m.input.CursorEnd()
}

// SetWidth resizes the input.
func (m *CmdBarModel) SetWidth(w int) {
	m.input.Width = w
}

// Submit returns the current input and blurs
func (m *CmdBarModel) Submit() string {
	val := strings.TrimSpace(m.input.Value())
	m.Blur()
	return strings.TrimPrefix(val, "/")
}

// Update forwards key input to the text field.
func (m *CmdBarModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// View renders the command bar
func (m *CmdBarModel) View() string {
	if m.focused {
		prompt := promptStyle.Render(": ")
		return cmdBarStyle.Render(prompt + m.input.View())
	}
	return cmdBarStyle.Render("Press : to enter a command, / to browse commands")
}

// Command is a parsed command-bar line.
type Command struct {
	Name string
	Task models.Task
}

var weekdayNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// ParseDays reads a weekday list such as "mon,wed,fri", "daily",
// "weekdays" or "weekends".
func ParseDays(s string) ([]int, error) {
	switch strings.ToLower(s) {
	case "daily":
		return []int{0, 1, 2, 3, 4, 5, 6}, nil
	case "weekdays":
		return []int{1, 2, 3, 4, 5}, nil
	case "weekends":
		return []int{0, 6}, nil
	}
	var days []int
	seen := map[int]bool{}
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if len(name) > 3 {
			name = name[:3]
		}
		d, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	return days, nil
}

// splitOn separates a trailing "on YYYY-MM-DD" from a title.
func splitOn(args []string, fallback calendar.Date) (string, calendar.Date, error) {
	date := fallback
	if n := len(args); n >= 2 && args[n-2] == "on" {
		d, err := calendar.Parse(args[n-1])
		if err != nil {
			return "", date, err
		}
		date = d
		args = args[:n-2]
	}
	return strings.Join(args, " "), date, nil
}

// ParseCommand parses a command-bar line. day is the date new one-off tasks
// default to.
func ParseCommand(input string, day calendar.Date) (Command, error) {
	parts := strings.Fields(strings.TrimPrefix(strings.TrimSpace(input), "/"))
	if len(parts) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	cmd := Command{Name: parts[0]}
	args := parts[1:]

	switch cmd.Name {
	case "add", "meal":
		title, date, err := splitOn(args, day)
		if err != nil {
			return cmd, err
		}
		if title == "" {
			return cmd, fmt.Errorf("usage: %s <title> [on YYYY-MM-DD]", cmd.Name)
		}
		cmd.Task = models.Task{Title: title, Type: models.TaskTypeOneOff, DueDate: &date}
		if cmd.Name == "meal" {
			cmd.Task.Category = models.CategoryMeals
		}
	case "every":
		if len(args) < 2 {
			return cmd, fmt.Errorf("usage: every <days> <title>")
		}
		days, err := ParseDays(args[0])
		if err != nil {
			return cmd, err
		}
		cmd.Task = models.Task{
			Title:      strings.Join(args[1:], " "),
			Type:       models.TaskTypeRecurring,
			Recurrence: &models.Recurrence{Days: days},
		}
	case "rm", "done", "undo", "sync", "q", "quit":
	default:
		return cmd, fmt.Errorf("unknown command: %s", cmd.Name)
	}
	return cmd, nil
}

// Execute runs a command against the backend. sel is the selected instance,
// or nil.
func Execute(b Backend, input string, day calendar.Date, sel *row) tea.Cmd {
	cmd, err := ParseCommand(input, day)
	if err != nil {
		msg := "Error: " + err.Error()
		return func() tea.Msg { return cmdResultMsg{message: msg} }
	}
	if cmd.Name == "q" || cmd.Name == "quit" {
		return tea.Quit
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		switch cmd.Name {
		case "add", "meal", "every":
			created, err := b.CreateTask(ctx, cmd.Task)
			if err != nil {
				return cmdResultMsg{message: "Error: " + err.Error()}
			}
			return cmdResultMsg{message: fmt.Sprintf("✓ Added %s", created.Title), refresh: true}

		case "rm":
			if sel == nil {
				return cmdResultMsg{message: "No task selected"}
			}
			if err := b.DeleteTask(ctx, sel.Item.Task.ID); err != nil {
				return cmdResultMsg{message: "Error: " + err.Error()}
			}
			return cmdResultMsg{message: fmt.Sprintf("✓ Removed %s", sel.Item.Task.Title), refresh: true}

		case "done", "undo":
			if sel == nil {
				return cmdResultMsg{message: "No task selected"}
			}
			return setCompleted(ctx, b, *sel, cmd.Name == "done")

		case "sync":
			return runSync(ctx, b)
		}
		return nil
	}
}

func setCompleted(ctx context.Context, b Backend, r row, done bool) tea.Msg {
	date := r.Date
	if done {
		if _, err := b.AddCompletion(ctx, r.Item.Task.ID, &date); err != nil {
			return cmdResultMsg{message: "Error: " + err.Error()}
		}
		return cmdResultMsg{message: "✓ " + r.Item.Task.Title + " done", refresh: true}
	}
	if _, err := b.RemoveCompletions(ctx, r.Item.Task.ID, &date); err != nil {
		return cmdResultMsg{message: "Error: " + err.Error()}
	}
	return cmdResultMsg{message: "○ " + r.Item.Task.Title + " reopened", refresh: true}
}

func runSync(ctx context.Context, b Backend) tea.Msg {
	rep, err := b.ForceSync(ctx)
	if err != nil {
		return cmdResultMsg{message: "Error: sync: " + err.Error()}
	}
	return cmdResultMsg{
		message: fmt.Sprintf("✓ Synced %d tasks (%d pushed)", rep.Merged, rep.Pushed),
		refresh: true,
	}
}

type cmdResultMsg struct {
	message string
	refresh bool
}
