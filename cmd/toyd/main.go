// Package main runs the toyd device daemon.
//
// Usage:
//
//	toyd [flags]
//
// toyd drives one toy: it connects to a toygate relay, streams microphone
// audio up while push-to-talk is held, and plays the synthesized reply.
// Audio I/O is plain PCM16 on configurable paths ("-" means stdin/stdout),
// so it pairs with arecord/aplay pipelines on devices without a native
// audio stack. Push-to-talk is driven by SIGUSR1 (press) and SIGUSR2
// (release).
package main

import (
	"fmt"
	"os"

	"github.com/pommai/toygate/cmd/toyd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
