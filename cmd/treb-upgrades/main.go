package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/cli"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/config"
)

// Set by the linker
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	config.SetBuildFlags(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
