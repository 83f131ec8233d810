package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask     = "task"
	TopicWorkflow = "workflow"
)

// Event type constants
const (
	EventTypeTaskStarted      = "task.started"
	EventTypeTaskCompleted    = "task.completed"
	EventTypeTaskFailed       = "task.failed"
	EventTypeTaskSkipped      = "task.skipped"
	EventTypeGroupStarted     = "workflow.group_started"
	EventTypeGroupFinished    = "workflow.group_finished"
	EventTypeWorkflowProgress = "workflow.progress"
	EventTypeWorkflowFinished = "workflow.finished"
)

// TaskStartedEvent is published when a task's Process call begins.
type TaskStartedEvent struct {
	ID        string
	SessionID string
	GroupID   int // -1 when not part of a parallel group
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task finishes without errors.
type TaskCompletedEvent struct {
	ID         string
	SessionID  string
	Method     string
	Confidence float64
	Duration   time.Duration
	Timestamp  time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task's output carries errors.
type TaskFailedEvent struct {
	ID        string
	SessionID string
	Errors    []string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskSkippedEvent is published when a task is disabled or its condition is false.
type TaskSkippedEvent struct {
	ID        string
	SessionID string
	Reason    string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) TaskID() string    { return e.ID }

// GroupStartedEvent is published when a parallel group fans out.
type GroupStartedEvent struct {
	SessionID string
	GroupID   int
	Members   []string
	Timestamp time.Time
}

func (e GroupStartedEvent) EventType() string { return EventTypeGroupStarted }
func (e GroupStartedEvent) TaskID() string    { return "" }

// GroupFinishedEvent is published after a parallel group's barrier.
type GroupFinishedEvent struct {
	SessionID string
	GroupID   int
	Failed    int
	Duration  time.Duration
	Timestamp time.Time
}

func (e GroupFinishedEvent) EventType() string { return EventTypeGroupFinished }
func (e GroupFinishedEvent) TaskID() string    { return "" }

// WorkflowProgressEvent is published after every stage.
type WorkflowProgressEvent struct {
	SessionID string
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Pending   int
	Timestamp time.Time
}

func (e WorkflowProgressEvent) EventType() string { return EventTypeWorkflowProgress }
func (e WorkflowProgressEvent) TaskID() string    { return "" }

// WorkflowFinishedEvent is published when Execute returns.
type WorkflowFinishedEvent struct {
	SessionID string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e WorkflowFinishedEvent) EventType() string { return EventTypeWorkflowFinished }
func (e WorkflowFinishedEvent) TaskID() string    { return "" }
