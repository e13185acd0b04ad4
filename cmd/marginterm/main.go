// Command marginterm is the backend entry point for the margin trading
// terminal. The default command loads configuration, validates it, wires
// dependencies, sets up signal handling, and starts the application in the
// configured mode. Offline helpers live in subcommands.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
