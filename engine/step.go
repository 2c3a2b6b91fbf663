package engine

import "context"

// StepFunc is the body of a single-unit step. It receives the provider
// selected for this attempt and returns the generated payload. Bodies
// persist their own business artifacts; the engine only validates the
// payload and tracks execution state.
type StepFunc func(ctx context.Context, provider string) (string, error)

// ItemFunc is the body of one subitem within a batch step.
type ItemFunc func(ctx context.Context, provider string, item string) (string, error)

// Step is one unit in the fixed pipeline order. Set Run for a single
// step, or Items plus RunItem for a step that decomposes into
// independently retryable subitems.
type Step struct {
	Name string

	// Provider is the preferred backend; the resolver expands it into
	// the full fallback chain.
	Provider string

	// MinResultLen is the empty-response threshold for this step's
	// payloads. Zero disables the check.
	MinResultLen int

	Run StepFunc

	Items   []string
	RunItem ItemFunc
}

func (s Step) isBatch() bool { return s.RunItem != nil }

// Outcome is the per-subitem result of a batch step. A subitem that
// permanently failed is recorded here rather than aborting the batch;
// Skipped marks subitems already attempted by a previous run.
type Outcome struct {
	Item    string
	Value   string
	Skipped bool
	Err     error
}
