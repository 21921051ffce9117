package tui

import (
	"errors"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/spiffcs/deprecator/internal/constants"
	"github.com/spiffcs/deprecator/internal/engine"
	"github.com/spiffcs/deprecator/internal/model"
)

// Run starts the TUI and blocks until it completes.
func Run(events <-chan Event, opts ...ModelOption) error {
	model := NewModel(events, opts...)
	// Render inline rather than on the alt screen so the summary stays visible.
	p := tea.NewProgram(model)
	_, err := p.Run()
	return err
}

// ShouldUseTUI returns true if the TUI should be used based on environment.
func ShouldUseTUI() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}

	ciVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"JENKINS_URL",
		"TRAVIS",
		"CIRCLECI",
		"GITLAB_CI",
		"BUILDKITE",
	}

	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return false
		}
	}

	return true
}

// SendEvent sends an event to the channel in a non-blocking manner.
func SendEvent(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- e:
	default:
		// drop the event if the channel is full
	}
}

// SendTaskEvent is a convenience function for sending task events.
func SendTaskEvent(ch chan<- Event, task TaskID, status TaskStatus, opts ...TaskEventOption) {
	e := TaskEvent{
		Task:   task,
		Status: status,
	}
	for _, opt := range opts {
		opt(&e)
	}
	SendEvent(ch, e)
}

// TaskEventOption is a functional option for TaskEvent.
type TaskEventOption func(*TaskEvent)

// WithCounts sets how much of a stage is done.
func WithCounts(done, total int) TaskEventOption {
	return func(e *TaskEvent) {
		e.Done = done
		e.Total = total
	}
}

// WithFailed sets the number of failures in a stage.
func WithFailed(n int) TaskEventOption {
	return func(e *TaskEvent) {
		e.Failed = n
	}
}

// WithError sets the error on a TaskEvent.
func WithError(err error) TaskEventOption {
	return func(e *TaskEvent) {
		e.Error = err
	}
}

// TaskFor maps an engine stage to its task.
func TaskFor(stage engine.Stage) (TaskID, bool) {
	switch stage {
	case engine.StageLocate:
		return TaskLocate, true
	case engine.StageFetch:
		return TaskFetch, true
	case engine.StageSelect:
		return TaskSelect, true
	case engine.StageDeprecate:
		return TaskDeprecate, true
	}
	return 0, false
}

// StageProgress returns an engine progress callback that forwards to ch.
// Running updates are throttled per task; the first and final update of a
// stage are always sent. The locate stage has no meaningful counts of its
// own, so it takes the package total once fetching starts.
func StageProgress(ch chan<- Event) engine.ProgressFunc {
	var mu sync.Mutex
	last := map[TaskID]time.Time{}

	return func(stage engine.Stage, completed, total int) {
		task, ok := TaskFor(stage)
		if !ok || ch == nil {
			return
		}

		if task == TaskLocate {
			status := StatusRunning
			if completed >= total {
				status = StatusComplete
			}
			SendTaskEvent(ch, task, status)
			return
		}
		if task == TaskFetch && completed == 0 {
			SendTaskEvent(ch, TaskLocate, StatusComplete, WithCounts(total, total))
		}

		switch {
		case completed >= total:
			SendTaskEvent(ch, task, StatusComplete, WithCounts(completed, total))
			return
		case completed == 0:
			SendTaskEvent(ch, task, StatusRunning, WithCounts(0, total))
			return
		}

		mu.Lock()
		now := time.Now()
		if now.Sub(last[task]) < constants.TUIUpdateInterval {
			mu.Unlock()
			return
		}
		last[task] = now
		mu.Unlock()

		SendTaskEvent(ch, task, StatusRunning, WithCounts(completed, total))
	}
}

// SummaryEvents reports the failures recorded in a finished run: packages
// whose metadata could not be fetched and versions that failed to deprecate.
func SummaryEvents(result *engine.Result) []TaskEvent {
	if result == nil {
		return nil
	}

	var fetchFailed, versionsFailed int
	for _, pkg := range result.Packages {
		if errors.Is(pkg.Err, model.ErrRegistryFetch) {
			fetchFailed++
		}
		for _, o := range pkg.Outcomes {
			if o.Status == model.StatusFailed {
				versionsFailed++
			}
		}
	}

	var events []TaskEvent
	if fetchFailed > 0 {
		events = append(events, TaskEvent{Task: TaskFetch, Status: StatusError, Failed: fetchFailed})
	}
	if versionsFailed > 0 {
		events = append(events, TaskEvent{Task: TaskDeprecate, Status: StatusError, Failed: versionsFailed})
	}
	return events
}
