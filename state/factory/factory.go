// Package factory builds the configured Store backend from environment
// variables. The file backend is the default: checkpoints stay readable
// with a text editor and survive without extra infrastructure.
package factory

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bookforge/pipeline-go/state"
	"github.com/bookforge/pipeline-go/state/filestore"
	redisstore "github.com/bookforge/pipeline-go/state/redis"
	sqlitestore "github.com/bookforge/pipeline-go/state/sqlite"
)

func FromEnv() (state.Store, error) {
	backend := strings.ToLower(strings.TrimSpace(getenv("BOOKPIPE_STATE_BACKEND", "file")))
	return ForBackend(backend)
}

// ForBackend builds a store for an explicit backend name, filling
// connection details from the environment.
func ForBackend(backend string) (state.Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "file":
		dir := getenv("BOOKPIPE_CHECKPOINT_DIR", "./output")
		return filestore.New(dir)

	case "sqlite":
		path := getenv("BOOKPIPE_SQLITE_PATH", "./output/pipelines.db")
		return sqlitestore.New(path)

	case "redis":
		addr := getenv("BOOKPIPE_REDIS_ADDR", "127.0.0.1:6379")
		password := strings.TrimSpace(os.Getenv("BOOKPIPE_REDIS_PASSWORD"))
		db := getenvInt("BOOKPIPE_REDIS_DB", 0)
		ttl := getenvDuration("BOOKPIPE_REDIS_TTL", 72*time.Hour)
		return redisstore.New(addr,
			redisstore.WithPassword(password),
			redisstore.WithDB(db),
			redisstore.WithTTL(ttl),
		)

	default:
		return nil, unsupportedBackendError(backend)
	}
}

type unsupportedBackendError string

func (e unsupportedBackendError) Error() string {
	return "unsupported state backend " + strconv.Quote(string(e)) + " (use file, sqlite, or redis)"
}

func getenv(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getenvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
