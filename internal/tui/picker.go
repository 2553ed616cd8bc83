// Package tui provides terminal user interface components for litterbox
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litterbox-sh/litterbox/internal/sandbox"
)

// sandboxItem implements list.Item for sandbox display
type sandboxItem struct {
	record *sandbox.Record
}

func (i sandboxItem) Title() string {
	return i.record.Slug
}

func (i sandboxItem) Description() string {
	statusIcon := "●"
	switch i.record.Status {
	case sandbox.StatusActive:
		statusIcon = "✓"
	case sandbox.StatusPaused:
		statusIcon = "●"
	case sandbox.StatusError:
		statusIcon = "✗"
	}

	ports := "no ports"
	if n := len(i.record.ForwardedPorts); n == 1 {
		ports = fmt.Sprintf("%d port", n)
	} else if n > 1 {
		ports = fmt.Sprintf("%d ports", n)
	}

	return fmt.Sprintf("%s %s | %s | %s",
		statusIcon,
		i.record.Status,
		i.record.BranchName,
		ports,
	)
}

func (i sandboxItem) FilterValue() string {
	return i.record.Slug
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)
)

// Model is the bubbletea model for the sandbox picker
type Model struct {
	list     list.Model
	action   string
	selected *sandbox.Record
	quitting bool
}

// NewPicker creates a picker over the given records. action names the
// operation the selection feeds ("delete", "resume", ...).
func NewPicker(records []*sandbox.Record, action string) Model {
	items := make([]list.Item, len(records))
	for i, record := range records {
		items[i] = sandboxItem{record: record}
	}

	delegate := list.NewDefaultDelegate()
	l := list.New(items, delegate, 0, 0)
	l.Title = fmt.Sprintf("Select a sandbox to %s", action)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.Styles.Title = titleStyle

	return Model{list: l, action: action}
}

// Selected returns the chosen record, or nil if the picker was dismissed.
func (m Model) Selected() *sandbox.Record {
	return m.selected
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(sandboxItem); ok {
				m.selected = item.record
			}
			m.quitting = true
			return m, tea.Quit
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.list.View() + helpStyle.Render("enter: select • /: filter • q: quit")
}

// Pick runs the picker and returns the selected record. A dismissed
// picker returns nil with no error.
func Pick(records []*sandbox.Record, action string) (*sandbox.Record, error) {
	model := NewPicker(records, action)
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, err
	}
	return final.(Model).Selected(), nil
}
