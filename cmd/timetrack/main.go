package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cam3ron2/timetrack/internal/cli"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "timetrack: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return cli.NewRootCommand(cli.Options{}).ExecuteContext(rootCtx)
}
