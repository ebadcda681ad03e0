package device

import "log/slog"

// LEDPattern names an indicator animation. The renderer decides what the
// pattern looks like on the actual hardware.
type LEDPattern string

const (
	LEDStartup    LEDPattern = "startup"
	LEDIdle       LEDPattern = "idle"
	LEDListening  LEDPattern = "listening"
	LEDProcessing LEDPattern = "processing"
	LEDSpeaking   LEDPattern = "speaking"
	LEDError      LEDPattern = "error"
	LEDOffline    LEDPattern = "offline"
)

// LEDRenderer renders a named pattern asynchronously. Implementations must
// not block: the engine calls Set from state transitions.
type LEDRenderer interface {
	Set(pattern LEDPattern)
}

// patternForState maps engine states to their indicator patterns.
func patternForState(s State) LEDPattern {
	switch s {
	case StateConnecting:
		return LEDStartup
	case StateListening:
		return LEDListening
	case StateProcessing:
		return LEDProcessing
	case StateSpeaking:
		return LEDSpeaking
	case StateError:
		return LEDError
	case StateOffline:
		return LEDOffline
	default:
		return LEDIdle
	}
}

// LogLEDs is an LEDRenderer that logs pattern changes. Used off-hardware.
type LogLEDs struct{}

func (LogLEDs) Set(pattern LEDPattern) {
	slog.Debug("led pattern", "pattern", pattern)
}
