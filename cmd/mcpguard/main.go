// Package main is the entry point for the mcpguard CLI.
//
// mcpguard keeps a trusted baseline of an MCP client configuration and every
// server script it references, reports drift from that baseline, and lets the
// operator revert or accept it. Commands:
//
//	check    detect drift and print it (exit 3 when anything changed)
//	review   interactive review with revert and accept
//	revert   restore the baseline
//	accept   promote the current content to the baseline
//	init     baseline the current state
//	status   show the guarded configuration
//	history  list accepted baselines
//	watch    check periodically
//	mcp      serve the engine as MCP tools on stdio
package main

import (
	"errors"
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// exitError ends the process with code without printing anything more.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
