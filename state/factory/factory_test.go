package factory

import (
	"path/filepath"
	"testing"

	"github.com/bookforge/pipeline-go/state/filestore"
	sqlitestore "github.com/bookforge/pipeline-go/state/sqlite"
)

func TestForBackendFile(t *testing.T) {
	t.Setenv("BOOKPIPE_CHECKPOINT_DIR", t.TempDir())
	s, err := ForBackend("file")
	if err != nil {
		t.Fatalf("file backend: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*filestore.Store); !ok {
		t.Fatalf("expected filestore, got %T", s)
	}
}

func TestForBackendDefaultsToFile(t *testing.T) {
	t.Setenv("BOOKPIPE_CHECKPOINT_DIR", t.TempDir())
	s, err := ForBackend("")
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*filestore.Store); !ok {
		t.Fatalf("expected filestore, got %T", s)
	}
}

func TestForBackendSQLite(t *testing.T) {
	t.Setenv("BOOKPIPE_SQLITE_PATH", filepath.Join(t.TempDir(), "state.db"))
	s, err := ForBackend("sqlite")
	if err != nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*sqlitestore.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", s)
	}
}

func TestForBackendUnknown(t *testing.T) {
	if _, err := ForBackend("etcd"); err == nil {
		t.Fatal("unknown backend must be rejected")
	}
}
