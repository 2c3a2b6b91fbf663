// Package state defines the durable execution state of a pipeline run
// and the Store interface its backends implement.
package state

import (
	"fmt"
	"slices"
	"time"

	"github.com/bookforge/pipeline-go/faults"
)

// SchemaVersion is written into every checkpoint document so future
// readers can detect older snapshots.
const SchemaVersion = 1

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// ErrorEntry is one observed failure. The log is append-only; its length
// is a stable proxy for the number of failures a run has seen.
type ErrorEntry struct {
	Step     string          `json:"step"`
	Subitem  string          `json:"subitem,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Category faults.Category `json:"category"`
	Message  string          `json:"message"`
	Seq      int64           `json:"seq"`
}

// ExecutionState is the single source of truth for a pipeline run. It is
// mutated in place by the engine and persisted after every transition.
type ExecutionState struct {
	PipelineID    string   `json:"pipelineId"`
	SchemaVersion int      `json:"schemaVersion"`
	StepOrder     []string `json:"stepOrder"`

	StepStatus  map[string]StepStatus `json:"stepStatus"`
	CurrentStep string                `json:"currentStep,omitempty"`

	// SubitemProgress holds, per batch step, the subitem ids already
	// attempted (successfully or with a recorded failure).
	SubitemProgress map[string][]string `json:"subitemProgress"`

	ProviderUsage map[string]int `json:"providerUsage"`
	ErrorLog      []ErrorEntry   `json:"errorLog"`

	// Logical counters, not wall clock, so resume and equality checks
	// stay deterministic. The wall-clock stamp is informational only.
	CreatedAtLogical      int64      `json:"createdAtLogical"`
	LastCheckpointLogical int64      `json:"lastCheckpointLogical"`
	LastCheckpointAt      *time.Time `json:"lastCheckpointAt,omitempty"`
}

// New creates a fresh state with every step pending.
func New(pipelineID string, stepOrder []string) *ExecutionState {
	statuses := make(map[string]StepStatus, len(stepOrder))
	for _, step := range stepOrder {
		statuses[step] = StepPending
	}
	return &ExecutionState{
		PipelineID:      pipelineID,
		SchemaVersion:   SchemaVersion,
		StepOrder:       append([]string(nil), stepOrder...),
		StepStatus:      statuses,
		SubitemProgress: map[string][]string{},
		ProviderUsage:   map[string]int{},
		ErrorLog:        []ErrorEntry{},
	}
}

// MarkRunning transitions a step to running. Completed is terminal;
// pending and failed steps may (re)enter running.
func (s *ExecutionState) MarkRunning(step string) error {
	switch s.StepStatus[step] {
	case StepCompleted:
		return fmt.Errorf("step %q is completed and cannot rerun", step)
	case StepRunning:
		return fmt.Errorf("step %q is already running", step)
	}
	if s.CurrentStep != "" && s.CurrentStep != step {
		return fmt.Errorf("step %q is still running", s.CurrentStep)
	}
	s.StepStatus[step] = StepRunning
	s.CurrentStep = step
	return nil
}

// MarkCompleted transitions the running step to completed.
func (s *ExecutionState) MarkCompleted(step string) {
	s.StepStatus[step] = StepCompleted
	if s.CurrentStep == step {
		s.CurrentStep = ""
	}
}

// MarkFailed transitions the running step to failed.
func (s *ExecutionState) MarkFailed(step string) {
	s.StepStatus[step] = StepFailed
	if s.CurrentStep == step {
		s.CurrentStep = ""
	}
}

// MarkInterrupted returns a running step to pending. Used when a run
// suspends mid-step or a loaded snapshot recorded a crash mid-step; the
// ephemeral retry state is not persisted, so the step re-runs fresh.
func (s *ExecutionState) MarkInterrupted(step string) {
	if s.StepStatus[step] == StepRunning {
		s.StepStatus[step] = StepPending
	}
	if s.CurrentStep == step {
		s.CurrentStep = ""
	}
}

// CanSkip reports whether a step already completed in a prior run.
func (s *ExecutionState) CanSkip(step string) bool {
	return s.StepStatus[step] == StepCompleted
}

// NextPending returns the first step in order that has not completed, or
// "" when the run is done.
func (s *ExecutionState) NextPending() string {
	for _, step := range s.StepOrder {
		if s.StepStatus[step] != StepCompleted {
			return step
		}
	}
	return ""
}

// Completed reports whether every step has completed.
func (s *ExecutionState) Completed() bool {
	return s.NextPending() == ""
}

// SubitemDone reports whether a subitem was already attempted.
func (s *ExecutionState) SubitemDone(step, subitem string) bool {
	return slices.Contains(s.SubitemProgress[step], subitem)
}

// MarkSubitemDone records a subitem as attempted. Idempotent.
func (s *ExecutionState) MarkSubitemDone(step, subitem string) {
	if s.SubitemDone(step, subitem) {
		return
	}
	if s.SubitemProgress == nil {
		s.SubitemProgress = map[string][]string{}
	}
	s.SubitemProgress[step] = append(s.SubitemProgress[step], subitem)
}

// RecordError appends one failure to the error log.
func (s *ExecutionState) RecordError(step, subitem, providerName string, category faults.Category, message string) {
	s.ErrorLog = append(s.ErrorLog, ErrorEntry{
		Step:     step,
		Subitem:  subitem,
		Provider: providerName,
		Category: category,
		Message:  message,
		Seq:      int64(len(s.ErrorLog)) + 1,
	})
}

// RecordCall bumps the per-provider call counter.
func (s *ExecutionState) RecordCall(providerName string) {
	if s.ProviderUsage == nil {
		s.ProviderUsage = map[string]int{}
	}
	s.ProviderUsage[providerName]++
}

// StepErrors returns the error-log entries for one step, newest last.
func (s *ExecutionState) StepErrors(step string) []ErrorEntry {
	var out []ErrorEntry
	for _, entry := range s.ErrorLog {
		if entry.Step == step {
			out = append(out, entry)
		}
	}
	return out
}

// Progress returns completion as a fraction in [0, 1].
func (s *ExecutionState) Progress() float64 {
	if len(s.StepOrder) == 0 {
		return 0
	}
	done := 0
	for _, step := range s.StepOrder {
		if s.StepStatus[step] == StepCompleted {
			done++
		}
	}
	return float64(done) / float64(len(s.StepOrder))
}

// Validate checks internal consistency after loading a snapshot.
func (s *ExecutionState) Validate() error {
	if s.PipelineID == "" {
		return fmt.Errorf("pipeline id is required")
	}
	if s.SchemaVersion > SchemaVersion {
		return fmt.Errorf("checkpoint schema version %d is newer than supported %d", s.SchemaVersion, SchemaVersion)
	}
	if len(s.StepOrder) == 0 {
		return fmt.Errorf("step order is empty")
	}
	for _, step := range s.StepOrder {
		if _, ok := s.StepStatus[step]; !ok {
			return fmt.Errorf("step %q has no status entry", step)
		}
	}
	if len(s.StepStatus) != len(s.StepOrder) {
		return fmt.Errorf("stepStatus has %d entries for %d steps", len(s.StepStatus), len(s.StepOrder))
	}
	running := 0
	for _, status := range s.StepStatus {
		if status == StepRunning {
			running++
		}
	}
	if running > 1 {
		return fmt.Errorf("%d steps are marked running, at most one is allowed", running)
	}
	return nil
}
