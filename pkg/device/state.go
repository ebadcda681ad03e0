// Package device implements the toy-side half of the voice link: the
// gateway connection with reconnect and backoff, the capture pipeline that
// streams microphone audio up, and the jitter-buffered playback pipeline
// that renders synthesized speech on commodity audio sinks.
package device

import "encoding/json"

// State represents the operating state of a toy device.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateListening
	StateProcessing
	StateSpeaking
	StateError
	StateOffline
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "idle":
		*s = StateIdle
	case "connecting":
		*s = StateConnecting
	case "listening":
		*s = StateListening
	case "processing":
		*s = StateProcessing
	case "speaking":
		*s = StateSpeaking
	case "error":
		*s = StateError
	case "offline":
		*s = StateOffline
	default:
		*s = StateIdle
	}
	return nil
}

// CanRecord reports whether a recording may start in this state.
func (s State) CanRecord() bool {
	return s == StateIdle
}

// IsActive reports whether the device is mid-interaction.
func (s State) IsActive() bool {
	switch s {
	case StateListening, StateProcessing, StateSpeaking:
		return true
	default:
		return false
	}
}
