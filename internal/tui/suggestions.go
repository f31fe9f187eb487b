package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// SuggestionKind says what accepting a suggestion does.
type SuggestionKind int

const (
	// KindCommand completes a command name into the bar.
	KindCommand SuggestionKind = iota
	// KindTask jumps the selection to a task in the current week.
	KindTask
)

// SuggestionItem is one autocomplete candidate.
type SuggestionItem struct {
	Text        string
	Description string
	Kind        SuggestionKind
}

var commandSuggestions = []SuggestionItem{
	{Text: "add", Description: "One-off task on the selected day"},
	{Text: "meal", Description: "Plan a meal on the selected day"},
	{Text: "every", Description: "Recurring task, e.g. every mon,thu Bins"},
	{Text: "done", Description: "Mark the selected instance done"},
	{Text: "undo", Description: "Reopen the selected instance"},
	{Text: "rm", Description: "Delete the selected task"},
	{Text: "sync", Description: "Reconcile with the daemon now"},
	{Text: "quit", Description: "Leave familydash"},
}

// maxSuggestions is how many candidates the dropdown shows.
const maxSuggestions = 5

// Suggestions completes "/" commands and "@" task references typed into the
// command bar.
type Suggestions struct {
	trigger  byte
	pool     []SuggestionItem
	matches  []SuggestionItem
	selected int
}

// NewSuggestions returns an idle completer.
func NewSuggestions() *Suggestions {
	return &Suggestions{}
}

func (s *Suggestions) reset() {
	s.trigger = 0
	s.pool = nil
	s.matches = nil
	s.selected = 0
}

// Update recomputes the candidates for the bar's current input. Completion
// stops at the first space.
func (s *Suggestions) Update(input string) {
	if input == "" || strings.Contains(input, " ") {
		s.reset()
		return
	}
	switch trigger := input[0]; trigger {
	case '/':
		s.trigger = trigger
		s.pool = commandSuggestions
	case '@':
		if s.trigger != '@' {
			s.pool = nil
		}
		s.trigger = trigger
	default:
		s.reset()
		return
	}
	s.match(input[1:])
}

// SetTasks offers task titles while an "@" reference is being typed.
func (s *Suggestions) SetTasks(titles []string, query string) {
	if s.trigger != '@' {
		return
	}
	s.pool = make([]SuggestionItem, 0, len(titles))
	for _, title := range titles {
		s.pool = append(s.pool, SuggestionItem{Text: title, Description: "this week", Kind: KindTask})
	}
	s.match(query)
}

// match keeps the candidates containing query, prefix matches first.
func (s *Suggestions) match(query string) {
	q := strings.ToLower(query)
	var prefix, inner []SuggestionItem
	for _, item := range s.pool {
		text := strings.ToLower(item.Text)
		switch {
		case strings.HasPrefix(text, q):
			prefix = append(prefix, item)
		case strings.Contains(text, q):
			inner = append(inner, item)
		}
	}
	s.matches = append(prefix, inner...)
	s.selected = 0
}

// Next moves the highlight down, wrapping around.
func (s *Suggestions) Next() {
	if n := len(s.matches); n > 0 {
		s.selected = (s.selected + 1) % n
	}
}

// Prev moves the highlight up, wrapping around.
func (s *Suggestions) Prev() {
	if n := len(s.matches); n > 0 {
		s.selected = (s.selected + n - 1) % n
	}
}

// Selected returns the highlighted candidate, or nil.
func (s *Suggestions) Selected() *SuggestionItem {
	if !s.IsVisible() || s.selected >= len(s.matches) {
		return nil
	}
	return &s.matches[s.selected]
}

// IsVisible reports whether there is anything to show.
func (s *Suggestions) IsVisible() bool {
	return s.trigger != 0 && len(s.matches) > 0
}

// Render draws the dropdown below the command bar.
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(max(20, width-4))
	highlight := lipgloss.NewStyle().Background(primaryColor).Foreground(fgColor).Bold(true)
	plain := lipgloss.NewStyle().Foreground(fgColor)
	muted := lipgloss.NewStyle().Foreground(mutedColor).Italic(true)

	title := "Commands"
	if s.trigger == '@' {
		title = "Tasks"
	}
	lines := []string{lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(title)}

	// Keep the highlight on screen when it moves past the first page.
	first := 0
	if s.selected >= maxSuggestions {
		first = s.selected - maxSuggestions + 1
	}
	last := min(len(s.matches), first+maxSuggestions)
	for i := first; i < last; i++ {
		item := s.matches[i]
		if i == s.selected {
			lines = append(lines, highlight.Render("▶ "+item.Text+"  "+item.Description))
			continue
		}
		lines = append(lines, plain.Render("  "+item.Text)+"  "+muted.Render(item.Description))
	}
	if hidden := len(s.matches) - (last - first); hidden > 0 {
		lines = append(lines, muted.Render(fmt.Sprintf("  %d more", hidden)))
	}
	return box.Render(strings.Join(lines, "\n"))
}
