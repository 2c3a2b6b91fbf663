package cli

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bookforge/pipeline-go/faults"
	"github.com/bookforge/pipeline-go/internal/config"
)

func TestBuildStepsRequiresCommand(t *testing.T) {
	cfg := &config.Config{Steps: []config.StepConfig{{Name: "plan", Provider: "gemini"}}}
	if _, err := buildSteps(cfg); err == nil {
		t.Fatal("buildSteps accepted a step without a command")
	}
}

func TestBuildStepsBatchShape(t *testing.T) {
	cfg := &config.Config{Steps: []config.StepConfig{
		{Name: "plan", Provider: "gemini", Command: []string{"true"}},
		{Name: "draft", Provider: "gemini", Items: []string{"a", "b"}, Command: []string{"true"}},
	}}
	steps, err := buildSteps(cfg)
	if err != nil {
		t.Fatalf("buildSteps failed: %v", err)
	}
	if steps[0].Run == nil || steps[0].RunItem != nil {
		t.Error("single step wired as batch")
	}
	if steps[1].RunItem == nil || len(steps[1].Items) != 2 {
		t.Error("batch step not wired")
	}
}

func TestRunCommandEnvAndOutput(t *testing.T) {
	out, err := runCommand(context.Background(),
		[]string{"sh", "-c", `printf '%s/%s/%s' "$BOOKPIPE_STEP" "$BOOKPIPE_PROVIDER" "$BOOKPIPE_ITEM"`},
		"draft", "gemini", "scene-1")
	if err != nil {
		t.Fatalf("runCommand failed: %v", err)
	}
	if out != "draft/gemini/scene-1" {
		t.Errorf("output = %q", out)
	}
}

func TestRunCommandTempFailExit(t *testing.T) {
	_, err := runCommand(context.Background(),
		[]string{"sh", "-c", "echo upstream hiccup >&2; exit 75"},
		"draft", "gemini", "")
	if err == nil {
		t.Fatal("expected error")
	}
	var classified *faults.Error
	if !errors.As(err, &classified) || classified.Category != faults.TransientNetwork {
		t.Errorf("exit 75 classified as %v, want transient", faults.Classify(err))
	}
	if !strings.Contains(err.Error(), "upstream hiccup") {
		t.Errorf("stderr not surfaced: %v", err)
	}
}

func TestRunCommandPlainFailure(t *testing.T) {
	_, err := runCommand(context.Background(),
		[]string{"sh", "-c", "echo invalid manuscript >&2; exit 1"},
		"plan", "gemini", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := faults.Classify(err); got != faults.Fatal {
		t.Errorf("plain exit 1 classified as %v, want fatal", got)
	}
}

func TestParseArgs(t *testing.T) {
	opts, positional := parseArgs([]string{"--config=custom.yaml", "run", "--debug", "novel-1", "--store=sqlite"})
	if opts.configPath != "custom.yaml" || !opts.debug || opts.store != "sqlite" {
		t.Errorf("opts = %+v", opts)
	}
	if len(positional) != 2 || positional[0] != "run" || positional[1] != "novel-1" {
		t.Errorf("positional = %v", positional)
	}
}
