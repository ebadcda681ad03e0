// Package tts abstracts streaming text-to-speech over multiple vendors.
//
// Providers stream raw PCM16 audio; the Streamer picks a provider per
// request, coalesces vendor chunks into wire-sized pieces, and falls back
// to the default provider once before reporting failure.
package tts

import (
	"context"
	"errors"
	"iter"
)

// Provider names.
const (
	ProviderElevenLabs = "elevenlabs"
	ProviderMiniMax    = "minimax"
)

// MinChunkSize is the smallest audio chunk forwarded to a client. Vendor
// streams deliver bursts of tiny chunks; anything below this is coalesced.
const MinChunkSize = 1024

// ErrSynthesisFailed reports that synthesis failed on the requested provider
// and the fallback.
var ErrSynthesisFailed = errors.New("tts: synthesis failed")

// VoiceConfig carries per-toy voice preferences. Zero values select
// provider defaults.
type VoiceConfig struct {
	// VoiceID is the vendor voice identifier.
	VoiceID string `json:"voiceId,omitempty" yaml:"voice_id,omitempty"`

	// ModelID is the vendor model identifier.
	ModelID string `json:"modelId,omitempty" yaml:"model_id,omitempty"`

	// Speed is the speech speed (0.5-2.0).
	Speed float64 `json:"speed,omitempty" yaml:"speed,omitempty"`

	// Volume is the output volume.
	Volume float64 `json:"volume,omitempty" yaml:"volume,omitempty"`

	// Pitch shifts the voice pitch in semitones.
	Pitch int `json:"pitch,omitempty" yaml:"pitch,omitempty"`

	// Emotion selects the voice emotion where supported.
	Emotion string `json:"emotion,omitempty" yaml:"emotion,omitempty"`
}

// Provider is a streaming text-to-speech backend.
type Provider interface {
	// Name identifies the provider in wire metadata and configuration.
	Name() string

	// AudioFormat is the wire format identifier of the produced audio.
	AudioFormat() string

	// SampleRate is the output sample rate in Hz.
	SampleRate() int

	// Stream synthesizes text and yields raw audio chunks.
	Stream(ctx context.Context, text string, cfg VoiceConfig) iter.Seq2[[]byte, error]
}
