package tts

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
)

// Chunk is one piece of synthesized audio with the metadata a relay needs
// to frame it for a device.
type Chunk struct {
	// Audio is raw PCM16 little-endian mono audio.
	Audio []byte

	// Provider is the name of the provider that produced the audio.
	Provider string

	// Format is the wire format identifier.
	Format string

	// SampleRate is the audio sample rate in Hz.
	SampleRate int
}

// Streamer synthesizes text through a registry of providers with one-shot
// fallback to the default provider.
type Streamer struct {
	registry *Registry
}

// NewStreamer creates a Streamer over the given registry.
func NewStreamer(registry *Registry) *Streamer {
	return &Streamer{registry: registry}
}

// Stream synthesizes text with the named provider, or the registry default
// when providerName is empty. If the chosen provider fails and is not the
// default, synthesis restarts once on the default. When both fail the
// iterator yields ErrSynthesisFailed wrapping the underlying errors.
//
// Audio is coalesced into chunks of at least MinChunkSize bytes.
func (s *Streamer) Stream(ctx context.Context, text, providerName string, cfg VoiceConfig) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		def, err := s.registry.Default()
		if err != nil {
			yield(Chunk{}, fmt.Errorf("%w: %w", ErrSynthesisFailed, err))
			return
		}

		provider := def
		if providerName != "" {
			p, err := s.registry.Get(providerName)
			if err != nil {
				slog.Warn("unknown TTS provider requested, using default",
					"requested", providerName, "default", def.Name())
			} else {
				provider = p
			}
		}

		primaryErr := s.streamOne(ctx, provider, text, cfg, yield)
		if primaryErr == nil {
			return
		}

		slog.Error("TTS streaming failed", "provider", provider.Name(), "err", primaryErr)

		if provider.Name() == def.Name() {
			yield(Chunk{}, fmt.Errorf("%w: %w", ErrSynthesisFailed, primaryErr))
			return
		}

		slog.Info("attempting TTS fallback", "provider", def.Name())
		if fallbackErr := s.streamOne(ctx, def, text, cfg, yield); fallbackErr != nil {
			slog.Error("TTS fallback failed", "provider", def.Name(), "err", fallbackErr)
			yield(Chunk{}, fmt.Errorf("%w: %w (fallback: %w)", ErrSynthesisFailed, primaryErr, fallbackErr))
		}
	}
}

// streamOne runs a single provider to completion. It returns the provider
// error, or nil when the stream finished or the consumer stopped.
func (s *Streamer) streamOne(ctx context.Context, p Provider, text string, cfg VoiceConfig, yield func(Chunk, error) bool) error {
	for audio, err := range Coalesce(p.Stream(ctx, text, cfg), MinChunkSize) {
		if err != nil {
			return err
		}
		ok := yield(Chunk{
			Audio:      audio,
			Provider:   p.Name(),
			Format:     p.AudioFormat(),
			SampleRate: p.SampleRate(),
		}, nil)
		if !ok {
			return nil
		}
	}
	return nil
}
