// Command indexmerge runs segment merge plans.
//
//	indexmerge docmapper --plan plan.yaml
//	indexmerge merge --plan plan.yaml --concurrency 4 --memory-limit 2147483648
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

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "indexmerge:", err)
		stop()
		os.Exit(1)
	}
}
