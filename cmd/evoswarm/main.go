package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"evoswarm/internal/role"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run resolves the process role once. A spawned child always runs the
// worker command with whatever flags its parent passed along.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	r, rest := role.Resolve(args)
	if r == role.Worker {
		rest = append([]string{"worker"}, rest...)
	}
	cmd := newRootCmd()
	cmd.SetArgs(rest)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}
