// Command jobsh is an interactive shell with job control.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// TODO: Inject version at build time.
const version = "0.0.1"

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// NOTE: SIGINT and SIGTSTP are deliberately absent. They're requests for the
	// foreground job and the job manager forwards them.
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGHUP,
	)
	defer cancel()

	return rootCmd().ExecuteContext(ctx)
}
