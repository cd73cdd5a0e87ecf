package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, a := newRootCommand()
	err := cmd.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil {
		fmt.Fprintln(os.Stderr, "Error closing log file:", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
