//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals stop serve and mcp-server gracefully.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
