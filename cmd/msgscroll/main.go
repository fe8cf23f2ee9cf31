// Command msgscroll browses a local mailbox through a lazily loaded table.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/wesm/msgscroll/cmd/msgscroll/cmd"
)

const (
	exitFailure     = 1
	exitInterrupted = 130 // 128 + SIGINT
)

func main() {
	os.Exit(run())
}

// run executes the root command and maps its outcome to an exit status.
// SIGINT and SIGTERM cancel the command's context; a command that stops
// because of that exits with exitInterrupted.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case interrupted(ctx, err):
		return exitInterrupted
	default:
		return exitFailure
	}
}

func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}
