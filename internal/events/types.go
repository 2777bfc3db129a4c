package events

import (
	"time"
)

// Event is the base interface for all run events.
type Event interface {
	EventType() string
	// Target is the target the event concerns, empty for run-level events.
	Target() string
}

// Topic constants
const (
	TopicTarget = "target" // target lifecycle
	TopicOutput = "output" // command output lines
	TopicRun    = "run"
)

// Event type constants
const (
	EventTypeTargetStarting  = "target.starting"
	EventTypeTargetOutput    = "target.output"
	EventTypeTargetSucceeded = "target.succeeded"
	EventTypeTargetFailed    = "target.failed"
	EventTypeRunFinished     = "run.finished"
)

// TargetStartingEvent is published when an action target begins its work.
type TargetStartingEvent struct {
	Name      string
	Timestamp time.Time
}

func (e TargetStartingEvent) EventType() string { return EventTypeTargetStarting }
func (e TargetStartingEvent) Target() string    { return e.Name }

// TargetOutputEvent carries one line of output from a command target.
type TargetOutputEvent struct {
	Name      string
	Line      string
	Stderr    bool
	Timestamp time.Time
}

func (e TargetOutputEvent) EventType() string { return EventTypeTargetOutput }
func (e TargetOutputEvent) Target() string    { return e.Name }

// TargetSucceededEvent is published when a target completes. Duration is nil
// for plain targets and dry runs.
type TargetSucceededEvent struct {
	Name      string
	Duration  *time.Duration
	Timestamp time.Time
}

func (e TargetSucceededEvent) EventType() string { return EventTypeTargetSucceeded }
func (e TargetSucceededEvent) Target() string    { return e.Name }

// TargetFailedEvent is published when a target's work fails.
type TargetFailedEvent struct {
	Name      string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TargetFailedEvent) EventType() string { return EventTypeTargetFailed }
func (e TargetFailedEvent) Target() string    { return e.Name }

// RunFinishedEvent is published once per run, after the summary.
type RunFinishedEvent struct {
	Names     []string
	Elapsed   time.Duration
	Err       error
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) Target() string    { return "" }
