package tts

import (
	"context"
	"iter"

	"github.com/pommai/toygate/pkg/elevenlabs"
	"github.com/pommai/toygate/pkg/wire"
)

// elevenLabsSampleRate is the PCM rate requested from ElevenLabs.
const elevenLabsSampleRate = 16000

// ElevenLabs adapts an elevenlabs.Client to the Provider interface.
type ElevenLabs struct {
	client *elevenlabs.Client

	// Defaults fills VoiceID and ModelID when a request leaves them empty.
	Defaults VoiceConfig
}

// NewElevenLabs wraps an existing ElevenLabs client.
func NewElevenLabs(client *elevenlabs.Client) *ElevenLabs {
	return &ElevenLabs{client: client}
}

// Name implements Provider.
func (p *ElevenLabs) Name() string { return ProviderElevenLabs }

// AudioFormat implements Provider.
func (p *ElevenLabs) AudioFormat() string { return wire.FormatPCM16 }

// SampleRate implements Provider.
func (p *ElevenLabs) SampleRate() int { return elevenLabsSampleRate }

// Stream implements Provider.
func (p *ElevenLabs) Stream(ctx context.Context, text string, cfg VoiceConfig) iter.Seq2[[]byte, error] {
	if cfg.VoiceID == "" {
		cfg.VoiceID = p.Defaults.VoiceID
	}
	if cfg.ModelID == "" {
		cfg.ModelID = p.Defaults.ModelID
	}
	req := &elevenlabs.SpeechRequest{
		Text:       text,
		VoiceID:    cfg.VoiceID,
		ModelID:    cfg.ModelID,
		SampleRate: elevenLabsSampleRate,
	}
	return p.client.Speech.SynthesizeStream(ctx, req)
}
