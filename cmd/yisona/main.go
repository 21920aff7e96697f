// Package main runs the yisona command line.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacentio/yisona/internal/cli"
)

func main() {
	cfg, args, err := cli.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	logger := cli.NewLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRunner(cfg, os.Stdout, logger).Run(ctx, args); err != nil {
		logger.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
