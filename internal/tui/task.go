package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
)

// Task is one stage of a run as shown in the progress display. Stages count
// packages; the deprecate stage additionally counts failed versions.
type Task struct {
	ID     TaskID
	Label  string
	Unit   string
	Status TaskStatus
	Done   int
	Total  int
	// Failed counts failures, described by FailedUnit when set.
	Failed     int
	FailedUnit string
	Err        error
}

// NewTask creates a pending task counting unit.
func NewTask(id TaskID, label, unit string) Task {
	return Task{ID: id, Label: label, Unit: unit, Status: StatusPending}
}

// Fraction returns the completed share of the stage in [0, 1].
func (t Task) Fraction() float64 {
	if t.Total <= 0 {
		return 0
	}
	return min(float64(t.Done)/float64(t.Total), 1)
}

// View renders the task line.
func (t Task) View(spinnerFrame string, bar progress.Model) string {
	parts := []string{StatusIcon(t.Status, spinnerFrame), labelFor(t.Status).Render(t.Label)}

	switch t.Status {
	case StatusRunning:
		if t.Total > 0 {
			parts = append(parts,
				bar.ViewAs(t.Fraction()),
				countStyle.Render(fmt.Sprintf("%d/%d %s", t.Done, t.Total, t.Unit)))
		}
	case StatusComplete, StatusError:
		if t.Total > 0 {
			parts = append(parts, countStyle.Render(fmt.Sprintf("(%d %s)", t.Done, t.Unit)))
		}
	}

	if t.Failed > 0 {
		noun := "failed"
		if t.FailedUnit != "" {
			noun = t.FailedUnit + " failed"
		}
		parts = append(parts, failedStyle.Render(fmt.Sprintf("%d %s", t.Failed, noun)))
	}
	if t.Err != nil {
		parts = append(parts, failedStyle.Render(t.Err.Error()))
	}

	return "  " + strings.Join(parts, " ")
}
