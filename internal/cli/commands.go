package cli

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bookforge/pipeline-go/backoff"
	"github.com/bookforge/pipeline-go/engine"
	"github.com/bookforge/pipeline-go/internal/config"
	"github.com/bookforge/pipeline-go/provider"
	"github.com/bookforge/pipeline-go/state"
	"github.com/bookforge/pipeline-go/state/filestore"
	statefactory "github.com/bookforge/pipeline-go/state/factory"
)

func runPipeline(ctx context.Context, opts cliOptions, args []string) {
	pipelineID := ""
	if len(args) > 0 {
		pipelineID = strings.TrimSpace(args[0])
	}

	cfg := loadConfig(opts)
	steps, err := buildSteps(cfg)
	if err != nil {
		log.Fatal(err)
	}

	store := buildStore(cfg, opts)
	defer closeStore(store)
	observer, closeObserver := buildObserver(ctx)
	defer closeObserver()

	suspender := engine.NewSuspender(cfg.Checkpoint.Dir)
	suspender.Start()
	defer suspender.Stop()

	eng, err := engine.New(store,
		engine.WithResolver(provider.NewResolver(cfg.Fallbacks)),
		engine.WithBackoff(backoff.Policy{
			TransientBase: cfg.Backoff.TransientBase,
			RateLimitBase: cfg.Backoff.RateLimitBase,
			EmptyBase:     cfg.Backoff.EmptyBase,
			CapFactor:     cfg.Backoff.CapFactor,
		}),
		engine.WithMaxRetries(cfg.Retry.MaxRetries),
		engine.WithCallTimeout(cfg.Retry.CallTimeout),
		engine.WithObserver(observer),
		engine.WithSuspender(suspender),
	)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	result, err := eng.Execute(ctx, pipelineID, steps)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}

	switch result.Status {
	case engine.RunPaused:
		fmt.Printf("paused\t%s\n", result.PipelineID)
		fmt.Printf("resume with: bookpipe run %s\n", result.PipelineID)
	default:
		fmt.Printf("%s\t%s\n", result.Status, result.PipelineID)
	}
	for step, outcomes := range result.Outcomes {
		failed := 0
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				failed++
			}
		}
		fmt.Printf("  %s: %d subitems, %d failed\n", step, len(outcomes), failed)
	}
}

func showStatus(ctx context.Context, opts cliOptions, args []string) {
	if len(args) < 1 || strings.TrimSpace(args[0]) == "" {
		log.Fatal("usage: bookpipe status <pipeline-id>")
	}
	pipelineID := strings.TrimSpace(args[0])

	cfg := loadConfig(opts)
	store := buildStore(cfg, opts)
	defer closeStore(store)

	st, err := store.Load(ctx, pipelineID)
	if err != nil {
		log.Fatalf("status failed: %v", err)
	}
	printStatus(st)
}

func pausePipeline(opts cliOptions, args []string) {
	if len(args) < 1 || strings.TrimSpace(args[0]) == "" {
		log.Fatal("usage: bookpipe pause <pipeline-id>")
	}
	pipelineID := strings.TrimSpace(args[0])

	cfg := loadConfig(opts)
	suspender := engine.NewSuspender(cfg.Checkpoint.Dir)
	if err := suspender.CreateMarker(pipelineID); err != nil {
		log.Fatalf("pause failed: %v", err)
	}
	fmt.Printf("pause requested for %s (marker: %s)\n", pipelineID, suspender.MarkerPath(pipelineID))
}

func printStatus(st *state.ExecutionState) {
	fmt.Printf("pipeline:  %s\n", st.PipelineID)
	fmt.Printf("progress:  %.0f%%\n", st.Progress()*100)
	if next := st.NextPending(); next != "" {
		fmt.Printf("next:      %s\n", next)
	}
	fmt.Printf("checkpoint: seq %d", st.LastCheckpointLogical)
	if st.LastCheckpointAt != nil {
		fmt.Printf(" at %s", st.LastCheckpointAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
	fmt.Println()

	fmt.Println("steps:")
	for _, name := range st.StepOrder {
		line := fmt.Sprintf("  %-20s %s", name, st.StepStatus[name])
		if done := len(st.SubitemProgress[name]); done > 0 {
			line += fmt.Sprintf(" (%d subitems done)", done)
		}
		fmt.Println(line)
	}

	if len(st.ProviderUsage) > 0 {
		fmt.Println("provider calls:")
		for name, count := range st.ProviderUsage {
			fmt.Printf("  %-20s %d\n", name, count)
		}
	}

	if len(st.ErrorLog) > 0 {
		fmt.Printf("errors (%d total, last %d shown):\n", len(st.ErrorLog), min(len(st.ErrorLog), 5))
		start := len(st.ErrorLog) - 5
		if start < 0 {
			start = 0
		}
		for _, entry := range st.ErrorLog[start:] {
			target := entry.Step
			if entry.Subitem != "" {
				target += "/" + entry.Subitem
			}
			fmt.Printf("  [%s] %s via %s: %s\n", entry.Category, target, entry.Provider, entry.Message)
		}
	}
}

func loadConfig(opts cliOptions) *config.Config {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatal(err)
	}
	if opts.store != "" {
		cfg.Checkpoint.Backend = opts.store
	}
	return cfg
}

// buildStore honors the configured checkpoint directory for the file
// backend; sqlite and redis read their connection details from the
// environment through the factory.
func buildStore(cfg *config.Config, opts cliOptions) state.Store {
	var (
		store state.Store
		err   error
	)
	if cfg.Checkpoint.Backend == "file" {
		store, err = filestore.New(cfg.Checkpoint.Dir)
	} else {
		store, err = statefactory.ForBackend(cfg.Checkpoint.Backend)
	}
	if err != nil {
		log.Fatalf("failed to open state store: %v", err)
	}
	return store
}
