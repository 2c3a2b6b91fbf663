// Package cli implements the bookpipe command line: run a configured
// pipeline, inspect its checkpoint, or ask a running process to pause.
package cli

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
)

func Run(ctx context.Context, args []string) {
	_ = godotenv.Load()

	opts, positional := parseArgs(args)
	setupLogging(opts.debug)

	if len(positional) < 1 {
		printUsage()
		return
	}

	switch strings.TrimSpace(positional[0]) {
	case "run":
		runPipeline(ctx, opts, positional[1:])
	case "status":
		showStatus(ctx, opts, positional[1:])
	case "pause":
		pausePipeline(opts, positional[1:])
	case "help", "-h", "--help":
		printUsage()
	default:
		log.Fatalf("unknown command %q (try: bookpipe help)", positional[0])
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug || parseBoolEnv("BOOKPIPE_DEBUG", false) {
		level = slog.LevelDebug
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
	slog.SetDefault(slog.New(handler))
}
