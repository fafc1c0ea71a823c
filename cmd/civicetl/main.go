package main

import "os"

// main is the entry point for the civicetl binary. All wiring lives in the
// cobra command tree; see root.go.
func main() {
	ctx, stop := signalContext()
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
