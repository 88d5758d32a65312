// Command elemd hosts an audio graph session behind a websocket control
// endpoint, or renders instruction batches offline.
//
// Usage:
//
//	elemd [flags] <command> [args]
//
// Commands:
//
//	serve    - run a session driven by a null clock and serve clients
//	render   - apply a batch file and write the rendered audio
//	version  - show build information
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
