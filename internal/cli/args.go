package cli

import (
	"log"
	"os"
	"strings"

	"github.com/bookforge/pipeline-go/internal/config"
	"github.com/bookforge/pipeline-go/state"
)

type cliOptions struct {
	configPath string
	store      string
	debug      bool
}

func parseArgs(args []string) (cliOptions, []string) {
	opts := cliOptions{configPath: "bookpipe.yaml"}
	positional := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "--config="):
			opts.configPath = strings.TrimSpace(strings.TrimPrefix(arg, "--config="))
		case strings.HasPrefix(arg, "--store="):
			opts.store = strings.TrimSpace(strings.TrimPrefix(arg, "--store="))
		case arg == "--debug":
			opts.debug = true
		default:
			positional = append(positional, arg)
		}
	}
	return opts, positional
}

func parseBoolEnv(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return config.ParseBoolString(value, fallback)
}

func closeStore(store state.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		log.Printf("state store close failed: %v", err)
	}
}
