// Package otel bridges the observe.Sink to OpenTelemetry tracing.
//
// It converts engine events into OTel spans so pipeline runs, steps,
// retry attempts, and checkpoints are visible in any
// OpenTelemetry-compatible backend (Jaeger, Zipkin, Grafana, etc.).
package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/bookforge/pipeline-go/observe"
)

const instrumentationName = "github.com/bookforge/pipeline-go"

// Sink implements observe.Sink by emitting OpenTelemetry spans.
type Sink struct {
	tracer trace.Tracer
}

// NewSink creates an OTel sink using the given TracerProvider.
// If tp is nil, it uses a noop tracer provider.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{
		tracer: tp.Tracer(instrumentationName),
	}
}

// Emit converts an observe.Event into an OTel span.
func (s *Sink) Emit(_ context.Context, event observe.Event) error {
	event.Normalize()

	_, span := s.tracer.Start(context.Background(), spanNameFor(event), trace.WithTimestamp(event.Timestamp))

	attrs := []attribute.KeyValue{
		attribute.String("pipeline.event.kind", string(event.Kind)),
	}
	if event.PipelineID != "" {
		attrs = append(attrs, attribute.String("pipeline.id", event.PipelineID))
	}
	if event.Step != "" {
		attrs = append(attrs, attribute.String("pipeline.step", event.Step))
	}
	if event.Subitem != "" {
		attrs = append(attrs, attribute.String("pipeline.subitem", event.Subitem))
	}
	if event.Provider != "" {
		attrs = append(attrs, attribute.String("pipeline.provider", event.Provider))
	}
	if event.Attempt > 0 {
		attrs = append(attrs, attribute.Int("pipeline.attempt", event.Attempt))
	}
	if event.Category != "" {
		attrs = append(attrs, attribute.String("pipeline.error.category", event.Category))
	}
	if event.Status != "" {
		attrs = append(attrs, attribute.String("pipeline.status", string(event.Status)))
	}
	if event.Message != "" {
		attrs = append(attrs, attribute.String("pipeline.message", truncate(event.Message, 1024)))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, attribute.String("pipeline.attr."+k, fmt.Sprintf("%v", v)))
	}
	span.SetAttributes(attrs...)

	switch event.Status {
	case observe.StatusFailed:
		span.SetStatus(codes.Error, event.Error)
		if event.Error != "" {
			span.RecordError(fmt.Errorf("%s", event.Error))
		}
	case observe.StatusCompleted:
		span.SetStatus(codes.Ok, "")
	}

	span.End(trace.WithTimestamp(event.Timestamp))
	return nil
}

func spanNameFor(event observe.Event) string {
	switch event.Kind {
	case observe.KindRun:
		return "pipeline.run"
	case observe.KindStep:
		if event.Step != "" {
			return "pipeline.step." + event.Step
		}
		return "pipeline.step"
	case observe.KindSubitem:
		if event.Subitem != "" {
			return "pipeline.subitem." + event.Subitem
		}
		return "pipeline.subitem"
	case observe.KindAttempt:
		return "pipeline.attempt"
	case observe.KindCheckpoint:
		return "pipeline.checkpoint"
	default:
		return "pipeline.event"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
