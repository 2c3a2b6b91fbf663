package cli

import "fmt"

func printUsage() {
	fmt.Println("bookpipe - resilient pipeline runner")
	fmt.Println("Usage:")
	fmt.Println("  bookpipe run [pipeline-id]       start a new run, or resume the given id")
	fmt.Println("  bookpipe status <pipeline-id>    show checkpoint progress and recent errors")
	fmt.Println("  bookpipe pause <pipeline-id>     ask a running process to suspend at its next boundary")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --config=PATH                    config file (default bookpipe.yaml)")
	fmt.Println("  --store=file|sqlite|redis        override the checkpoint backend")
	fmt.Println("  --debug                          debug logging")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  BOOKPIPE_STATE_BACKEND           checkpoint backend (file, sqlite, redis)")
	fmt.Println("  BOOKPIPE_CHECKPOINT_DIR          checkpoint directory for the file backend")
	fmt.Println("  BOOKPIPE_SQLITE_PATH             sqlite database path")
	fmt.Println("  BOOKPIPE_REDIS_ADDR              redis address (host:port)")
	fmt.Println("  BOOKPIPE_MAX_RETRIES             attempts per provider before failover")
	fmt.Println("  BOOKPIPE_CALL_TIMEOUT            per-call deadline (e.g. 120s)")
	fmt.Println("  BOOKPIPE_METRICS_ADDR            serve Prometheus metrics on this address")
	fmt.Println("  BOOKPIPE_OBSERVE_ENABLED         disable event sinks when false")
	fmt.Println("  BOOKPIPE_DEBUG                   debug logging")
}
