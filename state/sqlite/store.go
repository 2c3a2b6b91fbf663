// Package sqlite is a Store backend that keeps the current snapshot per
// pipeline plus an append-only checkpoint history table for audit.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bookforge/pipeline-go/state"
)

//go:embed schema.sql
var schemaSQL string

const defaultBusyTimeout = 5 * time.Second

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
	maxOpenConn int
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConn = n
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
		maxOpenConn: 1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConn)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, snapshot *state.ExecutionState) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	if snapshot.PipelineID == "" {
		return fmt.Errorf("pipeline id is required")
	}

	snapshot.LastCheckpointLogical++
	if snapshot.CreatedAtLogical == 0 {
		snapshot.CreatedAtLogical = snapshot.LastCheckpointLogical
	}
	now := time.Now().UTC()
	snapshot.LastCheckpointAt = &now

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	stamp := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
INSERT INTO pipelines (pipeline_id, schema_version, snapshot, checkpoint_seq, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(pipeline_id) DO UPDATE SET
  schema_version=excluded.schema_version,
  snapshot=excluded.snapshot,
  checkpoint_seq=excluded.checkpoint_seq,
  updated_at=excluded.updated_at;
`
	if _, err := tx.ExecContext(ctx, upsert,
		snapshot.PipelineID,
		snapshot.SchemaVersion,
		string(raw),
		snapshot.LastCheckpointLogical,
		stamp,
	); err != nil {
		return fmt.Errorf("failed to save pipeline snapshot: %w", err)
	}

	const insert = `
INSERT INTO checkpoints (pipeline_id, seq, snapshot, created_at)
VALUES (?, ?, ?, ?);
`
	if _, err := tx.ExecContext(ctx, insert,
		snapshot.PipelineID,
		snapshot.LastCheckpointLogical,
		string(raw),
		stamp,
	); err != nil {
		if isUniqueViolation(err) {
			return state.ErrConflict
		}
		return fmt.Errorf("failed to record checkpoint history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, pipelineID string) (*state.ExecutionState, error) {
	if strings.TrimSpace(pipelineID) == "" {
		return nil, fmt.Errorf("pipeline id is required")
	}

	const q = `SELECT snapshot FROM pipelines WHERE pipeline_id = ?;`
	var raw string
	err := s.db.QueryRowContext(ctx, q, pipelineID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, state.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load pipeline snapshot: %w", err)
	}

	var snapshot state.ExecutionState
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline snapshot: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot for %q is inconsistent: %w", pipelineID, err)
	}
	return &snapshot, nil
}

// History returns up to limit checkpoint revisions, newest first.
func (s *Store) History(ctx context.Context, pipelineID string, limit int) ([]*state.ExecutionState, error) {
	if pipelineID == "" {
		return nil, fmt.Errorf("pipeline id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	const q = `
SELECT snapshot FROM checkpoints
WHERE pipeline_id = ?
ORDER BY seq DESC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, pipelineID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	out := make([]*state.ExecutionState, 0, limit)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		var snapshot state.ExecutionState
		if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint row: %w", err)
		}
		out = append(out, &snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
