package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Model is the Bubble Tea model for the TUI progress display.
type Model struct {
	tasks          []Task
	spinner        spinner.Model
	progress       progress.Model
	events         <-chan Event
	done           bool
	dryRun         bool
	rateLimited    bool
	rateLimitReset time.Time
}

// doneMsg signals that the event channel was closed.
type doneMsg struct{}

// ModelOption is a functional option for configuring a Model.
type ModelOption func(*Model)

// WithDryRun shows a banner stating that nothing will be deprecated.
func WithDryRun(dryRun bool) ModelOption {
	return func(m *Model) {
		m.dryRun = dryRun
	}
}

// DefaultTasks returns the task list for a deprecation run.
func DefaultTasks() []Task {
	deprecate := NewTask(TaskDeprecate, "Deprecating versions", "packages")
	deprecate.FailedUnit = "versions"

	return []Task{
		NewTask(TaskLocate, "Locating manifests", "packages"),
		NewTask(TaskFetch, "Fetching release metadata", "packages"),
		NewTask(TaskSelect, "Applying rules", "packages"),
		deprecate,
	}
}

// NewModel creates a new TUI model.
func NewModel(events <-chan Event, opts ...ModelOption) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	p := progress.New(
		progress.WithScaledGradient("#60a5fa", "#1e3a8a"),
		progress.WithWidth(25),
		progress.WithoutPercentage(),
	)

	m := Model{
		tasks:    DefaultTasks(),
		spinner:  s,
		progress: p,
		events:   events,
	}

	for _, opt := range opts {
		opt(&m)
	}

	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForEvent(m.events),
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		// the bar takes a quarter of the terminal
		m.progress.Width = min(max(msg.Width/4, 10), 40)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TaskEvent:
		m = m.updateTask(msg)
		return m, waitForEvent(m.events)

	case RateLimitEvent:
		m.rateLimited = msg.Limited
		m.rateLimitReset = msg.ResetAt
		return m, waitForEvent(m.events)

	case DoneEvent, doneMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

// updateTask applies a TaskEvent to the matching task.
func (m Model) updateTask(e TaskEvent) Model {
	for i := range m.tasks {
		t := &m.tasks[i]
		if t.ID != e.Task {
			continue
		}
		t.Status = e.Status
		if e.Total > 0 {
			t.Done, t.Total = e.Done, e.Total
		}
		if e.Failed > 0 {
			t.Failed = e.Failed
		}
		if e.Error != nil {
			t.Err = e.Error
		}
		break
	}
	return m
}

// View renders the model.
func (m Model) View() string {
	var b strings.Builder

	if m.dryRun {
		b.WriteString(bannerStyle.Render("  Dry run: no versions will be deprecated"))
		b.WriteString("\n")
	}

	for _, task := range m.tasks {
		b.WriteString(task.View(m.spinner.View(), m.progress))
		b.WriteString("\n")
	}

	if m.rateLimited {
		wait := time.Until(m.rateLimitReset).Round(time.Second)
		if wait > 0 {
			b.WriteString(warnStyle.Render(fmt.Sprintf("\n  GitHub rate limit reached (resets in %s)\n", wait)))
		}
	}

	if !m.done {
		b.WriteString(footerStyle.Render("\n  Press Ctrl+C to cancel"))
	}
	b.WriteString("\n")

	return b.String()
}

// waitForEvent creates a command that waits for the next event.
func waitForEvent(events <-chan Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return doneMsg{}
		}
		return event
	}
}
