//go:build windows

package main

import "os"

// shutdownSignals stop serve and mcp-server gracefully.
// Windows has no SIGTERM; only Ctrl+C is delivered.
var shutdownSignals = []os.Signal{os.Interrupt}
