package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bookforge/pipeline-go/faults"
)

// errSuspended propagates a suspension request out of retry and batch
// loops so the run can exit with a paused status instead of an error.
var errSuspended = errors.New("suspension requested")

// ExhaustedError reports that every provider's retry budget ran out for
// a step or subitem without a fatal error occurring.
type ExhaustedError struct {
	Step    string
	Subitem string
	// PerProvider records the last error category seen on each provider
	// tried, in resolution order.
	PerProvider map[string]faults.Category
	LastErr     error
}

func (e *ExhaustedError) Error() string {
	target := e.Step
	if e.Subitem != "" {
		target = e.Step + "/" + e.Subitem
	}

	providers := make([]string, 0, len(e.PerProvider))
	for name := range e.PerProvider {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	parts := make([]string, 0, len(providers))
	for _, name := range providers {
		parts = append(parts, fmt.Sprintf("%s=%s", name, e.PerProvider[name]))
	}

	return fmt.Sprintf("%s: retries exhausted across all providers (%s): %v",
		target, strings.Join(parts, ", "), e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }
