package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"calltrack/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cli.OpenFromEnv).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
