package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bookforge/pipeline-go/state"
)

func newTestRedisStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	prefix := "bookpipe-test-" + uuid.NewString()

	s, err := New(addr, WithPrefix(prefix), WithTTL(5*time.Minute))
	if err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		keys, _ := s.client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = s.client.Del(ctx, keys...).Err()
		}
		_ = s.Close()
	})
	return s
}

func TestRedisStore_SaveLoad(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	snapshot := state.New("novel-redis", []string{"plan", "draft"})
	_ = snapshot.MarkRunning("plan")
	snapshot.MarkCompleted("plan")

	if err := s.Save(ctx, snapshot); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Load(ctx, "novel-redis")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.StepStatus["plan"] != state.StepCompleted {
		t.Fatalf("unexpected snapshot: %+v", got.StepStatus)
	}
	if got.LastCheckpointLogical != 1 {
		t.Fatalf("checkpoint seq = %d, want 1", got.LastCheckpointLogical)
	}
}

func TestRedisStore_LoadMissing(t *testing.T) {
	s := newTestRedisStore(t)
	_, err := s.Load(context.Background(), "never-ran")
	if !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRedisStore_RequiresAddr(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("empty addr must be rejected")
	}
}
