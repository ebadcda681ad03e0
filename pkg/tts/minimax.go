package tts

import (
	"context"
	"iter"

	"github.com/pommai/toygate/pkg/minimax"
	"github.com/pommai/toygate/pkg/wire"
)

// minimaxSampleRate is the synthesis rate requested from MiniMax. 16 kHz
// matches the device playback path without resampling.
const minimaxSampleRate = 16000

// MiniMax adapts a minimax.Client to the Provider interface.
type MiniMax struct {
	client *minimax.Client
}

// NewMiniMax wraps an existing MiniMax client.
func NewMiniMax(client *minimax.Client) *MiniMax {
	return &MiniMax{client: client}
}

// Name implements Provider.
func (p *MiniMax) Name() string { return ProviderMiniMax }

// AudioFormat implements Provider.
func (p *MiniMax) AudioFormat() string { return wire.FormatPCM16 }

// SampleRate implements Provider.
func (p *MiniMax) SampleRate() int { return minimaxSampleRate }

// Stream implements Provider.
func (p *MiniMax) Stream(ctx context.Context, text string, cfg VoiceConfig) iter.Seq2[[]byte, error] {
	req := &minimax.SpeechRequest{
		Model: minimax.ModelSpeech01Turbo,
		Text:  text,
		VoiceSetting: &minimax.VoiceSetting{
			VoiceID: cfg.VoiceID,
			Speed:   cfg.Speed,
			Vol:     cfg.Volume,
			Pitch:   cfg.Pitch,
			Emotion: cfg.Emotion,
		},
		AudioSetting: &minimax.AudioSetting{
			Format:        minimax.AudioFormatPCM,
			SampleRate:    minimaxSampleRate,
			Channel:       1,
			BitsPerSample: 16,
		},
	}
	if req.VoiceSetting.VoiceID == "" {
		req.VoiceSetting.VoiceID = "female-shaonv"
	}
	if req.VoiceSetting.Speed == 0 {
		req.VoiceSetting.Speed = 1.0
	}
	if req.VoiceSetting.Vol == 0 {
		req.VoiceSetting.Vol = 1.0
	}
	if req.VoiceSetting.Emotion == "" {
		req.VoiceSetting.Emotion = "happy"
	}
	if cfg.ModelID != "" {
		req.Model = cfg.ModelID
	}

	return func(yield func([]byte, error) bool) {
		for chunk, err := range p.client.Speech.SynthesizeStream(ctx, req) {
			if err != nil {
				yield(nil, err)
				return
			}
			if len(chunk.Audio) == 0 {
				continue
			}
			if !yield(chunk.Audio, nil) {
				return
			}
		}
	}
}
