package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bookforge/pipeline-go/observe"
	"github.com/bookforge/pipeline-go/observe/prom"
)

// buildObserver assembles the event sink for a run: a debug log sink
// always, plus Prometheus counters served over HTTP when
// BOOKPIPE_METRICS_ADDR is set. Events are delivered asynchronously so
// a slow sink never stalls the engine.
func buildObserver(ctx context.Context) (observe.Sink, func()) {
	if !parseBoolEnv("BOOKPIPE_OBSERVE_ENABLED", true) {
		return observe.NoopSink{}, func() {}
	}

	sinks := []observe.Sink{logSink()}
	shutdownMetrics := func() {}

	if addr := strings.TrimSpace(os.Getenv("BOOKPIPE_METRICS_ADDR")); addr != "" {
		registry := prometheus.NewRegistry()
		sinks = append(sinks, prom.NewSink(registry))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
		shutdownMetrics = func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}
	}

	async := observe.NewAsyncSink(observe.NewMultiSink(sinks...), 256)
	return async, func() {
		async.Close()
		shutdownMetrics()
	}
}

func logSink() observe.Sink {
	return observe.SinkFunc(func(_ context.Context, event observe.Event) error {
		attrs := []any{"pipeline", event.PipelineID, "kind", event.Kind, "status", event.Status}
		if event.Step != "" {
			attrs = append(attrs, "step", event.Step)
		}
		if event.Subitem != "" {
			attrs = append(attrs, "subitem", event.Subitem)
		}
		if event.Provider != "" {
			attrs = append(attrs, "provider", event.Provider)
		}
		if event.Error != "" {
			attrs = append(attrs, "error", event.Error)
		}
		slog.Debug("pipeline event", attrs...)
		return nil
	})
}
