// Command shine drives the SHINE backdoor detection and repair pipeline:
// it runs the python phases, evaluates shielded agents through the
// environment bridge and reports the results.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// #region main
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newApp(os.Stdout, os.Stderr), os.Args[1:])
	stop()
	os.Exit(code)
}

// #endregion
