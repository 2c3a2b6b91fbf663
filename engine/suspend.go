package engine

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
)

// Suspender turns interrupt signals and an external pause marker into a
// cooperative suspension request. The engine consults it at step and
// subitem boundaries and during backoff sleeps; an in-flight remote
// call is never interrupted.
type Suspender struct {
	markerDir string

	requested atomic.Bool
	ch        chan struct{}
	closeOnce sync.Once

	sigCh    chan os.Signal
	stopOnce sync.Once
}

// NewSuspender creates a suspender whose pause markers live in
// markerDir (typically the checkpoint directory).
func NewSuspender(markerDir string) *Suspender {
	return &Suspender{
		markerDir: markerDir,
		ch:        make(chan struct{}),
	}
}

// Start registers for SIGINT/SIGTERM. Callers pair it with Stop.
func (s *Suspender) Start() {
	s.sigCh = make(chan os.Signal, 1)
	signal.Notify(s.sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range s.sigCh {
			s.Request()
		}
	}()
}

// Stop unregisters the signal handler.
func (s *Suspender) Stop() {
	s.stopOnce.Do(func() {
		if s.sigCh != nil {
			signal.Stop(s.sigCh)
			close(s.sigCh)
		}
	})
}

// Request flags suspension and wakes any interruptible sleep.
func (s *Suspender) Request() {
	if s.requested.CompareAndSwap(false, true) {
		s.closeOnce.Do(func() { close(s.ch) })
	}
}

// Done is closed once suspension has been requested via signal or
// Request; backoff sleeps select on it.
func (s *Suspender) Done() <-chan struct{} {
	return s.ch
}

// ShouldPause reports whether the run should suspend at this boundary.
// A pause marker on disk is consumed so the next run does not
// immediately re-trigger.
func (s *Suspender) ShouldPause(pipelineID string) bool {
	if s.requested.Load() {
		return true
	}
	marker := s.MarkerPath(pipelineID)
	if _, err := os.Stat(marker); err == nil {
		_ = os.Remove(marker)
		s.Request()
		return true
	}
	return false
}

// MarkerPath returns the pause marker path for a pipeline id.
func (s *Suspender) MarkerPath(pipelineID string) string {
	return filepath.Join(s.markerDir, pipelineID+".pause")
}

// CreateMarker writes the pause marker so an external process can
// request suspension without sending a signal.
func (s *Suspender) CreateMarker(pipelineID string) error {
	if err := os.MkdirAll(s.markerDir, 0o755); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}
	f, err := os.Create(s.MarkerPath(pipelineID))
	if err != nil {
		return fmt.Errorf("failed to create pause marker: %w", err)
	}
	return f.Close()
}
