// Package main runs the toygate relay server.
//
// Usage:
//
//	toygate [flags]
//
// The server accepts toy devices over WebSocket, forwards complete
// utterances to the Convex AI backend, and streams the reply text and
// synthesized speech back down. Configuration comes from an optional YAML
// file plus environment variable overrides; run with --help for the list.
package main

import (
	"fmt"
	"os"

	"github.com/pommai/toygate/cmd/toygate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
