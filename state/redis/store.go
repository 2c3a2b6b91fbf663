// Package redis is a Store backend for deployments that already run
// Redis; snapshots expire after a TTL, so it suits short-lived runs
// rather than long-term audit.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bookforge/pipeline-go/state"
)

const (
	defaultTTL    = 72 * time.Hour
	defaultPrefix = "bookpipe"
)

type Store struct {
	client   *goredis.Client
	ttl      time.Duration
	prefix   string
	addr     string
	db       int
	password string
}

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) {
		s.password = password
	}
}

func WithDB(db int) Option {
	return func(s *Store) {
		s.db = db
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	s := &Store{
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return s, nil
}

func (s *Store) key(pipelineID string) string {
	return s.prefix + ":pipeline:" + pipelineID
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
	if err := s.client.Set(ctx, s.key(snapshot.PipelineID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, pipelineID string) (*state.ExecutionState, error) {
	if strings.TrimSpace(pipelineID) == "" {
		return nil, fmt.Errorf("pipeline id is required")
	}

	raw, err := s.client.Get(ctx, s.key(pipelineID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, state.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snapshot state.ExecutionState
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot for %q is inconsistent: %w", pipelineID, err)
	}
	return &snapshot, nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
