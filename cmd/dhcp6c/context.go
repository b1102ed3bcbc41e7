package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// cmdContext returns a context cancelled on Ctrl+C or SIGTERM, grounded on
// daemon.go's context.WithCancel lifecycle wrapping and main.go's
// os.Interrupt/SIGTERM signal handler, collapsed onto the stdlib
// signal.NotifyContext helper the worker's ctx.Done() select already
// expects.
func cmdContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}
