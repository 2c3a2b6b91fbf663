package observe

import "time"

type Kind string

type Status string

const (
	KindRun        Kind = "run"
	KindStep       Kind = "step"
	KindSubitem    Kind = "subitem"
	KindAttempt    Kind = "attempt"
	KindCheckpoint Kind = "checkpoint"
	KindCustom     Kind = "custom"
)

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
	StatusPaused    Status = "paused"
)

type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	PipelineID string         `json:"pipelineId,omitempty"`
	Kind       Kind           `json:"kind"`
	Status     Status         `json:"status,omitempty"`
	Step       string         `json:"step,omitempty"`
	Subitem    string         `json:"subitem,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Attempt    int            `json:"attempt,omitempty"`
	Category   string         `json:"category,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
}
