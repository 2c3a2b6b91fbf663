package state

import (
	"context"
	"errors"
)

var (
	// ErrNotFound signals that no checkpoint exists for a pipeline id.
	// Callers treat it as "first run", not as a failure.
	ErrNotFound = errors.New("state: not found")
	// ErrConflict signals a duplicate checkpoint sequence on backends
	// that keep a revision history.
	ErrConflict = errors.New("state: conflict")
)

// Store persists pipeline execution state. Save must be atomic: a crash
// mid-write never leaves a partially written snapshot behind.
type Store interface {
	Save(ctx context.Context, snapshot *ExecutionState) error
	Load(ctx context.Context, pipelineID string) (*ExecutionState, error)
	Close() error
}
