package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	appLog "spcal/internal/log"
)

const version = "0.3.0"

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		appLog.Error("spcal failed", err)
		os.Exit(1)
	}
}
