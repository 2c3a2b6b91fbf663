// Package engine drives a fixed-order sequence of fallible remote-call
// steps to completion: retry with category-aware backoff, provider
// failover, durable checkpoints after every transition, and cooperative
// suspension with exact resume.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bookforge/pipeline-go/backoff"
	"github.com/bookforge/pipeline-go/observe"
	"github.com/bookforge/pipeline-go/provider"
	"github.com/bookforge/pipeline-go/state"
)

const defaultMaxRetries = 3

// RunStatus is the terminal status of one engine invocation. Paused is
// terminal for the process, not the pipeline: invoking the engine again
// with the same pipeline id resumes at the checkpoint.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPaused    RunStatus = "paused"
	RunFailed    RunStatus = "failed"
)

// Result is what one engine invocation produced.
type Result struct {
	Status     RunStatus
	PipelineID string
	State      *state.ExecutionState
	FailedStep string
	// Outcomes holds per-subitem results of batch steps executed during
	// this invocation, keyed by step name.
	Outcomes map[string][]Outcome
}

type Engine struct {
	store       state.Store
	resolver    *provider.Resolver
	policy      backoff.Policy
	maxRetries  int
	callTimeout time.Duration
	observer    observe.Sink
	logger      *slog.Logger
	suspender   *Suspender
}

type Option func(*Engine)

func WithResolver(r *provider.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

func WithBackoff(p backoff.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithMaxRetries sets the attempt budget per provider.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithCallTimeout bounds each remote call. Zero means no per-call
// deadline beyond the caller's context.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

func WithObserver(sink observe.Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.observer = sink
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithSuspender(s *Suspender) Option {
	return func(e *Engine) { e.suspender = s }
}

func New(store state.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	e := &Engine{
		store:      store,
		resolver:   provider.NewResolver(nil),
		policy:     backoff.Default(),
		maxRetries: defaultMaxRetries,
		observer:   observe.NoopSink{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute runs the pipeline to completion, pause, or failure. An empty
// pipelineID starts a fresh run under a generated id; a known id
// resumes from its checkpoint, never re-invoking completed steps.
func (e *Engine) Execute(ctx context.Context, pipelineID string, steps []Step) (Result, error) {
	if len(steps) == 0 {
		return Result{}, fmt.Errorf("at least one step is required")
	}
	if pipelineID == "" {
		pipelineID = uuid.NewString()
	}

	st, err := e.loadOrCreate(ctx, pipelineID, steps)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Status:     RunFailed,
		PipelineID: pipelineID,
		State:      st,
		Outcomes:   map[string][]Outcome{},
	}

	e.emit(ctx, observe.Event{Kind: observe.KindRun, Status: observe.StatusStarted, PipelineID: pipelineID})
	e.logger.Info("pipeline run starting",
		"pipeline", pipelineID, "steps", len(steps), "progress", st.Progress())

	for _, step := range steps {
		if st.CanSkip(step.Name) {
			e.logger.Info("step already completed, skipping", "pipeline", pipelineID, "step", step.Name)
			continue
		}
		if e.shouldPause(pipelineID) {
			return e.pause(ctx, st, result)
		}

		var stepErr error
		if step.isBatch() {
			var outcomes []Outcome
			outcomes, stepErr = e.runBatch(ctx, st, step)
			if outcomes != nil {
				result.Outcomes[step.Name] = outcomes
			}
		} else {
			stepErr = e.runStep(ctx, st, step)
		}

		if stepErr != nil {
			if errors.Is(stepErr, errSuspended) {
				return e.pause(ctx, st, result)
			}
			if ctx.Err() != nil {
				// Context cancellation is the caller's shutdown, not a
				// pipeline failure; leave the step re-runnable.
				st.MarkInterrupted(step.Name)
				_ = e.checkpoint(ctx, st)
				return result, ctx.Err()
			}
			result.FailedStep = step.Name
			e.emit(ctx, observe.Event{
				Kind: observe.KindRun, Status: observe.StatusFailed,
				PipelineID: pipelineID, Step: step.Name, Error: stepErr.Error(),
			})
			e.logger.Error("pipeline run failed",
				"pipeline", pipelineID, "step", step.Name, "error", stepErr)
			return result, fmt.Errorf("step %q failed: %w", step.Name, stepErr)
		}
	}

	result.Status = RunCompleted
	e.emit(ctx, observe.Event{Kind: observe.KindRun, Status: observe.StatusCompleted, PipelineID: pipelineID})
	e.logger.Info("pipeline run completed", "pipeline", pipelineID)
	return result, nil
}

// Status reads the checkpoint for a pipeline id without mutating it.
func (e *Engine) Status(ctx context.Context, pipelineID string) (*state.ExecutionState, error) {
	return e.store.Load(ctx, pipelineID)
}

func (e *Engine) loadOrCreate(ctx context.Context, pipelineID string, steps []Step) (*state.ExecutionState, error) {
	order := make([]string, len(steps))
	for i, step := range steps {
		order[i] = step.Name
	}

	st, err := e.store.Load(ctx, pipelineID)
	if errors.Is(err, state.ErrNotFound) {
		st = state.New(pipelineID, order)
		if err := e.checkpoint(ctx, st); err != nil {
			return nil, err
		}
		return st, nil
	}
	if err != nil {
		return nil, err
	}

	if len(st.StepOrder) != len(order) {
		return nil, fmt.Errorf("checkpoint for %q has %d steps, caller supplied %d", pipelineID, len(st.StepOrder), len(order))
	}
	for i, name := range st.StepOrder {
		if name != order[i] {
			return nil, fmt.Errorf("checkpoint for %q step %d is %q, caller supplied %q", pipelineID, i, name, order[i])
		}
	}

	// A snapshot with a running step means the previous process died
	// mid-step; return it to pending so it re-runs.
	if st.CurrentStep != "" {
		st.MarkInterrupted(st.CurrentStep)
	}
	e.logger.Info("checkpoint loaded",
		"pipeline", pipelineID, "progress", st.Progress(), "next", st.NextPending())
	return st, nil
}

func (e *Engine) pause(ctx context.Context, st *state.ExecutionState, result Result) (Result, error) {
	if err := e.checkpoint(ctx, st); err != nil {
		return result, err
	}
	result.Status = RunPaused
	e.emit(ctx, observe.Event{Kind: observe.KindRun, Status: observe.StatusPaused, PipelineID: st.PipelineID})
	e.logger.Info("pipeline run paused", "pipeline", st.PipelineID, "next", st.NextPending())
	return result, nil
}

func (e *Engine) shouldPause(pipelineID string) bool {
	return e.suspender != nil && e.suspender.ShouldPause(pipelineID)
}

// checkpoint persists the state and emits the checkpoint event. Every
// observable transition goes through here first.
func (e *Engine) checkpoint(ctx context.Context, st *state.ExecutionState) error {
	if err := e.store.Save(ctx, st); err != nil {
		return fmt.Errorf("checkpoint save failed: %w", err)
	}
	e.emit(ctx, observe.Event{
		Kind:       observe.KindCheckpoint,
		PipelineID: st.PipelineID,
		Step:       st.CurrentStep,
		Attributes: map[string]any{"seq": st.LastCheckpointLogical},
	})
	return nil
}

func (e *Engine) emit(ctx context.Context, event observe.Event) {
	if e.observer == nil {
		return
	}
	event.Normalize()
	_ = e.observer.Emit(ctx, event)
}

// sleep waits out a backoff delay but returns early on context
// cancellation or a suspension request.
func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	var suspendCh <-chan struct{}
	if e.suspender != nil {
		suspendCh = e.suspender.Done()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-suspendCh:
		return errSuspended
	}
}
