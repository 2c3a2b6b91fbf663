package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/bookforge/pipeline-go/faults"
	"github.com/bookforge/pipeline-go/observe"
	"github.com/bookforge/pipeline-go/state"
)

// runBatch executes a step that decomposes into independent subitems.
// Each subitem gets the full retry/failover treatment in isolation: a
// permanently failed subitem is recorded as an outcome and as done in
// subitemProgress, then the batch moves on. The step completes once
// every subitem has been attempted, whatever the individual results.
func (e *Engine) runBatch(ctx context.Context, st *state.ExecutionState, step Step) ([]Outcome, error) {
	if len(step.Items) == 0 {
		return nil, fmt.Errorf("batch step %q has no items", step.Name)
	}
	if err := st.MarkRunning(step.Name); err != nil {
		return nil, err
	}
	if err := e.checkpoint(ctx, st); err != nil {
		return nil, err
	}
	e.emit(ctx, observe.Event{
		Kind: observe.KindStep, Status: observe.StatusStarted,
		PipelineID: st.PipelineID, Step: step.Name,
		Attributes: map[string]any{"items": len(step.Items)},
	})

	outcomes := make([]Outcome, 0, len(step.Items))
	failures := 0

	for _, item := range step.Items {
		if st.SubitemDone(step.Name, item) {
			outcomes = append(outcomes, Outcome{Item: item, Skipped: true})
			continue
		}
		if e.shouldPause(st.PipelineID) {
			st.MarkInterrupted(step.Name)
			return outcomes, errSuspended
		}

		item := item
		value, err := e.attemptAll(ctx, st, step, item, func(callCtx context.Context, providerName string) (string, error) {
			return step.RunItem(callCtx, providerName, item)
		})

		switch {
		case err == nil:
			outcomes = append(outcomes, Outcome{Item: item, Value: value})
			st.MarkSubitemDone(step.Name, item)
			if cerr := e.checkpoint(ctx, st); cerr != nil {
				return outcomes, cerr
			}
			e.emit(ctx, observe.Event{
				Kind: observe.KindSubitem, Status: observe.StatusCompleted,
				PipelineID: st.PipelineID, Step: step.Name, Subitem: item,
			})

		case errors.Is(err, errSuspended):
			st.MarkInterrupted(step.Name)
			return outcomes, errSuspended

		case ctx.Err() != nil:
			return outcomes, ctx.Err()

		default:
			// Terminal subitem failure: record a sentinel outcome and
			// mark the subitem done so it is never reprocessed.
			failures++
			outcomes = append(outcomes, Outcome{Item: item, Err: err})
			st.MarkSubitemDone(step.Name, item)
			if cerr := e.checkpoint(ctx, st); cerr != nil {
				return outcomes, cerr
			}
			e.emit(ctx, observe.Event{
				Kind: observe.KindSubitem, Status: observe.StatusFailed,
				PipelineID: st.PipelineID, Step: step.Name, Subitem: item,
				Category: string(faults.Classify(err)), Error: err.Error(),
			})
			e.logger.Warn("subitem permanently failed, continuing batch",
				"pipeline", st.PipelineID, "step", step.Name, "subitem", item, "error", err)
		}
	}

	st.MarkCompleted(step.Name)
	if err := e.checkpoint(ctx, st); err != nil {
		return outcomes, err
	}
	e.emit(ctx, observe.Event{
		Kind: observe.KindStep, Status: observe.StatusCompleted,
		PipelineID: st.PipelineID, Step: step.Name,
		Attributes: map[string]any{"failures": failures},
	})
	e.logger.Info("batch step completed",
		"pipeline", st.PipelineID, "step", step.Name, "items", len(step.Items), "failures", failures)
	return outcomes, nil
}
