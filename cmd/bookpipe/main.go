package main

import (
	"context"
	"os"

	"github.com/bookforge/pipeline-go/internal/cli"
)

func main() {
	cli.Run(context.Background(), os.Args[1:])
}
