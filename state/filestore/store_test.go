package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/bookforge/pipeline-go/faults"
	"github.com/bookforge/pipeline-go/state"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, err := New(t.TempDir(), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	return s
}

func sampleState() *state.ExecutionState {
	s := state.New("novel-1", []string{"plan", "draft", "review"})
	_ = s.MarkRunning("plan")
	s.MarkCompleted("plan")
	s.MarkSubitemDone("draft", "scene-1")
	s.RecordCall("groq")
	s.RecordError("draft", "scene-2", "groq", faults.RateLimited, "429")
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	snapshot := sampleState()
	if err := fs.Save(ctx, snapshot); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := fs.Load(ctx, "novel-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, snapshot) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", loaded, snapshot)
	}
	if loaded.LastCheckpointLogical != 1 {
		t.Fatalf("logical counter = %d, want 1", loaded.LastCheckpointLogical)
	}
}

func TestLoadMissingIsNotFound(t *testing.T) {
	fs := newTestStore(t)
	_, err := fs.Load(context.Background(), "never-ran")
	if !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveIdempotentModuloCounter(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	snapshot := sampleState()
	if err := fs.Save(ctx, snapshot); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	first, err := fs.Load(ctx, "novel-1")
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}

	if err := fs.Save(ctx, snapshot); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	second, err := fs.Load(ctx, "novel-1")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}

	// Only the checkpoint counter may differ between the two saves.
	second.LastCheckpointLogical = first.LastCheckpointLogical
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated save changed state:\n got %#v\nwant %#v", second, first)
	}
}

func TestCrashMidWriteLeavesPreviousCheckpoint(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	snapshot := sampleState()
	if err := fs.Save(ctx, snapshot); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Simulate a writer that died before rename: a partial temp file
	// sits next to the real checkpoint.
	partial := fs.Path("novel-1") + ".tmp-partial"
	if err := os.WriteFile(partial, []byte(`{"pipelineId": "nov`), 0o644); err != nil {
		t.Fatalf("failed to plant partial file: %v", err)
	}

	loaded, err := fs.Load(ctx, "novel-1")
	if err != nil {
		t.Fatalf("Load after simulated crash: %v", err)
	}
	if loaded.PipelineID != "novel-1" || len(loaded.StepOrder) != 3 {
		t.Fatalf("previous checkpoint damaged: %#v", loaded)
	}
}

func TestCheckpointDocumentShape(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	if err := fs.Save(ctx, sampleState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	raw, err := os.ReadFile(fs.Path("novel-1"))
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("checkpoint not valid JSON: %v", err)
	}
	for _, field := range []string{
		"pipelineId", "schemaVersion", "stepOrder", "stepStatus",
		"subitemProgress", "providerUsage", "errorLog", "lastCheckpointLogical",
	} {
		if _, ok := doc[field]; !ok {
			t.Fatalf("checkpoint missing field %q", field)
		}
	}
}

func TestLoadRejectsCorruptDocument(t *testing.T) {
	fs := newTestStore(t)
	if err := os.WriteFile(fs.Path("bad"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if _, err := fs.Load(context.Background(), "bad"); err == nil {
		t.Fatal("corrupt checkpoint must not load")
	}
}
