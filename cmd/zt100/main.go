package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/k4lls/zt100/internal/cli"
	clierrors "github.com/k4lls/zt100/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.ExecuteContext(ctx)
	stop()

	if code := clierrors.ExitCode(err); code != 0 {
		os.Exit(code)
	}
}
