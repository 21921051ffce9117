package tui

import "time"

// TaskID identifies a task in the TUI progress display.
type TaskID int

const (
	TaskLocate    TaskID = iota // Finding package.json manifests
	TaskFetch                   // Fetching release metadata from the registry
	TaskSelect                  // Applying rules to each package's versions
	TaskDeprecate               // Running (or simulating) npm deprecate
)

// TaskStatus represents the current status of a task.
type TaskStatus int

const (
	StatusPending TaskStatus = iota
	StatusRunning
	StatusComplete
	StatusError
	StatusSkipped
)

// Event is the interface for all TUI events.
type Event interface {
	isEvent()
}

// TaskEvent updates a task. Zero counts leave the task's counts unchanged.
type TaskEvent struct {
	Task   TaskID
	Status TaskStatus
	Done   int
	Total  int
	Failed int
	Error  error
}

func (TaskEvent) isEvent() {}

// RateLimitEvent reports that GitHub requests are being throttled.
type RateLimitEvent struct {
	Limited bool
	ResetAt time.Time
}

func (RateLimitEvent) isEvent() {}

// DoneEvent signals that all work is complete.
type DoneEvent struct{}

func (DoneEvent) isEvent() {}
