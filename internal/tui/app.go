// Package tui provides the interactive terminal week view for familydash.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/client"
	"github.com/fentz26/familydash/internal/controlplane"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	taskItemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

// statusPollInterval is how often the sync indicator refreshes.
const statusPollInterval = 2 * time.Second

type mode int

const (
	modeWeek mode = iota
	modeDetail
)

// App is the main TUI application model.
type App struct {
	backend     Backend
	today       func() calendar.Date
	start       calendar.Date
	week        *controlplane.WeekView
	rows        []row
	selectedIdx int

	sync         *client.SyncStatus
	daemonOnline bool

	cmdbar      *CmdBarModel
	suggestions *Suggestions
	viewport    viewport.Model

	mode    mode
	width   int
	height  int
	message string
	loading bool
}

// New creates a new TUI application.
func New(b Backend) *App {
	a := &App{
		backend:     b,
		today:       calendar.Today,
		cmdbar:      NewCmdBarModel(),
		suggestions: NewSuggestions(),
		viewport:    viewport.New(80, 20),
		width:       80,
		height:      24,
	}
	a.start = calendar.StartOfWeek(a.today(), time.Monday)
	return a
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.fetchWeek(),
		a.fetchSync(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.cmdbar.Focused() {
			return a, a.updateCmdBar(msg)
		}
		return a, a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.cmdbar.SetWidth(msg.Width - 6)
		a.viewport.Width = msg.Width - 4
		a.viewport.Height = max(5, msg.Height-8)

	case weekLoadedMsg:
		a.loading = false
		a.week = msg.view
		a.start = msg.view.Start
		a.rows = flatten(msg.view)
		if a.selectedIdx >= len(a.rows) {
			a.selectedIdx = max(0, len(a.rows)-1)
		}

	case syncStatusMsg:
		a.daemonOnline = msg.err == nil
		var refetch bool
		if msg.err == nil {
			if a.sync != nil && !msg.status.State.LastSyncTime.Equal(a.sync.State.LastSyncTime) {
				refetch = true
			}
			a.sync = msg.status
		}
		cmds := []tea.Cmd{a.tickCmd()}
		if refetch {
			cmds = append(cmds, a.fetchWeek())
		}
		return a, tea.Batch(cmds...)

	case tickMsg:
		return a, a.fetchSync()

	case cmdResultMsg:
		a.message = msg.message
		if msg.refresh {
			return a, tea.Batch(a.fetchWeek(), a.fetchSync())
		}

	case errMsg:
		a.loading = false
		a.message = "Error: " + msg.err.Error()
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q":
		return tea.Quit

	case "esc":
		if a.mode == modeDetail {
			a.mode = modeWeek
		}
		a.message = ""

	case ":":
		return a.cmdbar.Focus()

	case "/":
		cmd := a.cmdbar.Focus()
		a.cmdbar.SetValue("/")
		a.suggestions.Update("/")
		return cmd

	case "up", "k":
		if a.mode == modeWeek && a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.mode == modeWeek && a.selectedIdx < len(a.rows)-1 {
			a.selectedIdx++
		}

	case "n":
		return a.gotoWeek(a.start.AddDays(7))

	case "p":
		return a.gotoWeek(a.start.AddDays(-7))

	case "t":
		return a.gotoWeek(calendar.StartOfWeek(a.today(), time.Monday))

	case "r":
		return a.fetchWeek()

	case "s":
		a.message = "Syncing..."
		return a.forceSync()

	case " ", "x":
		if sel := a.selected(); sel != nil {
			return a.toggle(*sel)
		}

	case "enter":
		if sel := a.selected(); sel != nil {
			a.mode = modeDetail
			a.viewport.SetContent(renderDetail(*sel, a.today()))
			a.viewport.GotoTop()
		}

	default:
		if a.mode == modeDetail {
			var cmd tea.Cmd
			a.viewport, cmd = a.viewport.Update(msg)
			return cmd
		}
	}
	return nil
}

func (a *App) updateCmdBar(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit

	case "esc":
		a.cmdbar.Blur()
		a.suggestions.Update("")
		return nil

	case "up":
		a.suggestions.Prev()
		return nil

	case "down":
		a.suggestions.Next()
		return nil

	case "tab":
		a.acceptSuggestion()
		return nil

	case "enter":
		if a.suggestions.IsVisible() && !strings.Contains(a.cmdbar.Value(), " ") {
			a.acceptSuggestion()
			return nil
		}
		input := a.cmdbar.Submit()
		a.suggestions.Update("")
		if input == "" {
			return nil
		}
		return Execute(a.backend, input, a.selectedDay(), a.selected())
	}

	cmd := a.cmdbar.Update(msg)
	a.refreshSuggestions()
	return cmd
}

func (a *App) acceptSuggestion() {
	sel := a.suggestions.Selected()
	if sel == nil {
		return
	}
	if sel.Kind == KindTask {
		for i, r := range a.rows {
			if r.Item.Task.Title == sel.Text {
				a.selectedIdx = i
				break
			}
		}
		a.cmdbar.SetValue("")
	} else {
		a.cmdbar.SetValue(sel.Text + " ")
	}
	a.suggestions.Update("")
}

func (a *App) refreshSuggestions() {
	value := a.cmdbar.Value()
	a.suggestions.Update(value)
	if strings.HasPrefix(value, "@") {
		seen := map[string]bool{}
		var titles []string
		for _, r := range a.rows {
			if !seen[r.Item.Task.Title] {
				seen[r.Item.Task.Title] = true
				titles = append(titles, r.Item.Task.Title)
			}
		}
		a.suggestions.SetTasks(titles, strings.TrimPrefix(value, "@"))
	}
}

func (a *App) selected() *row {
	if a.selectedIdx < 0 || a.selectedIdx >= len(a.rows) {
		return nil
	}
	r := a.rows[a.selectedIdx]
	return &r
}

// selectedDay is the day new one-off tasks land on: the selected row's day,
// today when it is in view, else the first day of the week.
func (a *App) selectedDay() calendar.Date {
	if sel := a.selected(); sel != nil {
		return sel.Date
	}
	today := a.today()
	if !today.Before(a.start) && today.Before(a.start.AddDays(7)) {
		return today
	}
	return a.start
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	header := titleStyle.Render("familydash")
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(
		fmt.Sprintf("week of %s", a.start.String()))
	header += "  " + renderSync(a.sync, a.daemonOnline)
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(0, a.width)) + "\n")

	contentHeight := max(5, a.height-7)
	switch a.mode {
	case modeWeek:
		if a.loading && a.week == nil {
			b.WriteString("\n  Loading week...\n")
		} else {
			b.WriteString(renderWeek(a.week, a.rows, a.selectedIdx, a.today(), contentHeight))
		}
	case modeDetail:
		b.WriteString(panelStyle.Render(a.viewport.View()))
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n" + a.cmdbar.View())
	if a.suggestions.IsVisible() {
		b.WriteString("\n" + a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case modeWeek:
		status = fmt.Sprintf(" Items: %d | ↑↓:nav | space:done | enter:detail | n/p:week | t:today | s:sync | q:quit", len(a.rows))
	default:
		status = " ↑↓:scroll | Esc:back | q:quit"
	}
	b.WriteString(statusBarStyle.Width(max(0, a.width)).Render(status))

	return b.String()
}

func (a *App) gotoWeek(start calendar.Date) tea.Cmd {
	a.start = start
	a.selectedIdx = 0
	a.mode = modeWeek
	return a.fetchWeek()
}

func (a *App) fetchWeek() tea.Cmd {
	a.loading = true
	start := a.start
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		view, err := a.backend.Week(ctx, start)
		if err != nil {
			return errMsg{err}
		}
		return weekLoadedMsg{view}
	}
}

func (a *App) fetchSync() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		status, err := a.backend.SyncStatus(ctx)
		return syncStatusMsg{status: status, err: err}
	}
}

func (a *App) forceSync() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return runSync(ctx, a.backend)
	}
}

func (a *App) toggle(r row) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return setCompleted(ctx, a.backend, r, !r.Item.Completed)
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(statusPollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type errMsg struct {
	err error
}

type weekLoadedMsg struct {
	view *controlplane.WeekView
}

type syncStatusMsg struct {
	status *client.SyncStatus
	err    error
}

type tickMsg time.Time
