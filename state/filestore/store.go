// Package filestore persists execution state as one human-inspectable
// JSON document per pipeline. Writes go to a temporary file in the same
// directory followed by an atomic rename, so a crash mid-write never
// corrupts the previous checkpoint.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bookforge/pipeline-go/state"
)

const checkpointSuffix = ".checkpoint.json"

type Store struct {
	dir string
	mu  sync.Mutex

	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the wall-clock stamp source. Tests pin it.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("checkpoint directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	s := &Store{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the checkpoint path for a pipeline id.
func (s *Store) Path(pipelineID string) string {
	return filepath.Join(s.dir, pipelineID+checkpointSuffix)
}

func (s *Store) Save(ctx context.Context, snapshot *state.ExecutionState) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	if snapshot.PipelineID == "" {
		return fmt.Errorf("pipeline id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot.LastCheckpointLogical++
	if snapshot.CreatedAtLogical == 0 {
		snapshot.CreatedAtLogical = snapshot.LastCheckpointLogical
	}
	stamp := s.now().UTC()
	snapshot.LastCheckpointAt = &stamp

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, "."+snapshot.PipelineID+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(snapshot.PipelineID)); err != nil {
		return fmt.Errorf("failed to publish checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, pipelineID string) (*state.ExecutionState, error) {
	if strings.TrimSpace(pipelineID) == "" {
		return nil, fmt.Errorf("pipeline id is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path(pipelineID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, state.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var snapshot state.ExecutionState
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint for %q is inconsistent: %w", pipelineID, err)
	}
	return &snapshot, nil
}

func (s *Store) Close() error { return nil }
