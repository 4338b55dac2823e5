// Package main is the entry point for the intakectl terminal client.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/careportal/internal/cli"
	"github.com/joho/godotenv"
)

// version is set at build time via ldflags
var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := cli.New(version)
	err := c.Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		c.Printer().FormatError(err)
		os.Exit(cli.ExitCode(err))
	}
}
