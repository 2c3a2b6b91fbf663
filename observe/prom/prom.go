// Package prom feeds engine events into Prometheus counters. These are
// process-level metrics; the per-run providerUsage counters in the
// checkpoint remain the durable record.
package prom

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bookforge/pipeline-go/observe"
)

type Sink struct {
	providerCalls   *prometheus.CounterVec
	attemptFailures *prometheus.CounterVec
	stepsCompleted  *prometheus.CounterVec
	checkpoints     prometheus.Counter
	pauses          prometheus.Counter
}

// NewSink builds the sink and registers its collectors. Pass nil to use
// the default registerer.
func NewSink(reg prometheus.Registerer) *Sink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &Sink{
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpipe_provider_calls_total",
				Help: "Remote generation calls issued, by provider",
			},
			[]string{"provider"},
		),
		attemptFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpipe_attempt_failures_total",
				Help: "Failed attempts, by provider and error category",
			},
			[]string{"provider", "category"},
		),
		stepsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpipe_steps_completed_total",
				Help: "Pipeline steps completed, by step name",
			},
			[]string{"step"},
		),
		checkpoints: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bookpipe_checkpoints_written_total",
				Help: "Checkpoint saves",
			},
		),
		pauses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bookpipe_pauses_total",
				Help: "Cooperative suspensions honored",
			},
		),
	}
	reg.MustRegister(s.providerCalls, s.attemptFailures, s.stepsCompleted, s.checkpoints, s.pauses)
	return s
}

func (s *Sink) Emit(_ context.Context, event observe.Event) error {
	switch event.Kind {
	case observe.KindAttempt:
		if event.Status == observe.StatusStarted {
			s.providerCalls.WithLabelValues(event.Provider).Inc()
		}
		if event.Status == observe.StatusFailed || event.Status == observe.StatusRetrying {
			s.attemptFailures.WithLabelValues(event.Provider, event.Category).Inc()
		}
	case observe.KindStep:
		if event.Status == observe.StatusCompleted {
			s.stepsCompleted.WithLabelValues(event.Step).Inc()
		}
	case observe.KindCheckpoint:
		s.checkpoints.Inc()
	case observe.KindRun:
		if event.Status == observe.StatusPaused {
			s.pauses.Inc()
		}
	}
	return nil
}
