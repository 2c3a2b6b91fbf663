package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bookforge/pipeline-go/faults"
	"github.com/bookforge/pipeline-go/observe"
	"github.com/bookforge/pipeline-go/state"
)

// runStep executes one single-unit step with retry and failover. The
// step is marked running before the first attempt and completed or
// failed afterwards, with a checkpoint at each transition.
func (e *Engine) runStep(ctx context.Context, st *state.ExecutionState, step Step) error {
	if step.Run == nil {
		return fmt.Errorf("step %q has no body", step.Name)
	}
	if err := st.MarkRunning(step.Name); err != nil {
		return err
	}
	if err := e.checkpoint(ctx, st); err != nil {
		return err
	}
	e.emit(ctx, observe.Event{
		Kind: observe.KindStep, Status: observe.StatusStarted,
		PipelineID: st.PipelineID, Step: step.Name,
	})

	_, err := e.attemptAll(ctx, st, step, "", func(callCtx context.Context, providerName string) (string, error) {
		return step.Run(callCtx, providerName)
	})
	if err != nil {
		if errors.Is(err, errSuspended) || ctx.Err() != nil {
			// Execute saves the final checkpoint on the pause and
			// cancellation paths.
			st.MarkInterrupted(step.Name)
			return err
		}
		st.MarkFailed(step.Name)
		if cerr := e.checkpoint(ctx, st); cerr != nil {
			return cerr
		}
		e.emit(ctx, observe.Event{
			Kind: observe.KindStep, Status: observe.StatusFailed,
			PipelineID: st.PipelineID, Step: step.Name,
			Category: string(faults.Classify(err)), Error: err.Error(),
		})
		return err
	}

	st.MarkCompleted(step.Name)
	if err := e.checkpoint(ctx, st); err != nil {
		return err
	}
	e.emit(ctx, observe.Event{
		Kind: observe.KindStep, Status: observe.StatusCompleted,
		PipelineID: st.PipelineID, Step: step.Name,
	})
	e.logger.Info("step completed", "pipeline", st.PipelineID, "step", step.Name)
	return nil
}

// attemptAll walks the provider chain for one step or subitem, spending
// the retry budget on each provider before falling over to the next.
// The retry state is ephemeral; only the error log and usage counters
// reach the checkpoint.
func (e *Engine) attemptAll(
	ctx context.Context,
	st *state.ExecutionState,
	step Step,
	subitem string,
	call func(ctx context.Context, providerName string) (string, error),
) (string, error) {
	providers := e.resolver.Resolve(step.Provider)
	if len(providers) == 0 {
		return "", fmt.Errorf("step %q names no provider", step.Name)
	}

	perProvider := map[string]faults.Category{}
	var lastErr error

	for _, providerName := range providers {
		for attempt := 0; attempt < e.maxRetries; attempt++ {
			st.RecordCall(providerName)
			e.emit(ctx, observe.Event{
				Kind: observe.KindAttempt, Status: observe.StatusStarted,
				PipelineID: st.PipelineID, Step: step.Name, Subitem: subitem,
				Provider: providerName, Attempt: attempt,
			})

			value, err := e.invoke(ctx, step, providerName, call)
			if err == nil {
				return value, nil
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}

			category := faults.Classify(err)
			st.RecordError(step.Name, subitem, providerName, category, err.Error())
			if cerr := e.checkpoint(ctx, st); cerr != nil {
				return "", cerr
			}
			e.logger.Warn("attempt failed",
				"pipeline", st.PipelineID, "step", step.Name, "subitem", subitem,
				"provider", providerName, "attempt", attempt, "category", category, "error", err)

			if category == faults.Fatal {
				e.emit(ctx, observe.Event{
					Kind: observe.KindAttempt, Status: observe.StatusFailed,
					PipelineID: st.PipelineID, Step: step.Name, Subitem: subitem,
					Provider: providerName, Attempt: attempt,
					Category: string(category), Error: err.Error(),
				})
				return "", err
			}

			perProvider[providerName] = category
			lastErr = err
			e.emit(ctx, observe.Event{
				Kind: observe.KindAttempt, Status: observe.StatusRetrying,
				PipelineID: st.PipelineID, Step: step.Name, Subitem: subitem,
				Provider: providerName, Attempt: attempt,
				Category: string(category), Error: err.Error(),
			})

			if attempt == e.maxRetries-1 {
				break // budget spent, fail over to the next provider
			}

			delay := e.policy.Delay(attempt, category)
			if hint, ok := faults.RetryAfterHint(err); ok && hint > delay {
				delay = hint
			}
			if serr := e.sleep(ctx, delay); serr != nil {
				return "", serr
			}
		}
	}

	return "", &ExhaustedError{
		Step:        step.Name,
		Subitem:     subitem,
		PerProvider: perProvider,
		LastErr:     lastErr,
	}
}

// invoke runs one attempt under the per-call timeout and applies the
// minimal payload validity check.
func (e *Engine) invoke(
	ctx context.Context,
	step Step,
	providerName string,
	call func(ctx context.Context, providerName string) (string, error),
) (string, error) {
	callCtx := ctx
	if e.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
	}

	value, err := call(callCtx, providerName)
	if err != nil {
		return "", err
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", faults.Newf(faults.EmptyResponse, "provider %s returned empty response", providerName)
	}
	if step.MinResultLen > 0 && len(trimmed) < step.MinResultLen {
		return "", faults.Newf(faults.EmptyResponse,
			"response too short (%d chars, minimum %d)", len(trimmed), step.MinResultLen)
	}
	return value, nil
}
