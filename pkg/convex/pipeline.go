package convex

import (
	"context"

	"github.com/pommai/toygate/pkg/jsontime"
	"github.com/pommai/toygate/pkg/tts"
)

// VoiceRequest carries one complete utterance to the AI pipeline action.
type VoiceRequest struct {
	// ToyID identifies the toy personality.
	ToyID string `json:"toyId"`

	// AudioData is the base64-encoded audio container (normally WAV).
	AudioData string `json:"audioData"`

	// SessionID is the relay session handling the device.
	SessionID string `json:"sessionId"`

	// DeviceID is the physical device.
	DeviceID string `json:"deviceId"`

	// SkipTTS tells the pipeline not to render audio because the relay
	// streams synthesis itself.
	SkipTTS bool `json:"skipTTS"`

	// Metadata describes the submitted audio.
	Metadata VoiceRequestMetadata `json:"metadata"`
}

// VoiceRequestMetadata describes the audio forwarded with a VoiceRequest.
type VoiceRequestMetadata struct {
	// Timestamp is when the gateway submitted the request.
	Timestamp jsontime.Milli `json:"timestamp"`

	// Format is the container format of AudioData (wav, opus, pcm16).
	Format string `json:"format"`

	// Duration is the utterance length in seconds as reported by the
	// device, zero when unknown.
	Duration float64 `json:"duration"`
}

// VoiceResponse is the AI pipeline result.
type VoiceResponse struct {
	// Success reports whether the pipeline produced a response.
	Success bool `json:"success"`

	// Error holds the pipeline failure reason when Success is false.
	Error string `json:"error,omitempty"`

	// Text is the response to speak.
	Text string `json:"text,omitempty"`

	// ToyConfig carries the toy's voice preferences for synthesis.
	ToyConfig ToyConfig `json:"toyConfig,omitempty"`

	// AudioData is base64 pre-rendered audio, present only when the
	// pipeline handled synthesis itself.
	AudioData string `json:"audioData,omitempty"`

	// Format is the container format of AudioData.
	Format string `json:"format,omitempty"`

	// ProcessingTime is the backend-reported pipeline duration.
	ProcessingTime string `json:"processingTime,omitempty"`
}

// ToyConfig is the per-toy voice configuration stored in the backend. The
// voice fields are flattened alongside the provider selection.
type ToyConfig struct {
	// TTSProvider overrides the relay's default synthesis provider.
	TTSProvider string `json:"ttsProvider,omitempty"`

	tts.VoiceConfig
}

// ProcessVoiceInteraction runs the AI pipeline for one utterance.
//
// Transport-level failures are folded into the response so callers have one
// failure path: a non-2xx reply yields Success=false with the status and
// body in Error.
func (c *Client) ProcessVoiceInteraction(ctx context.Context, req *VoiceRequest) (*VoiceResponse, error) {
	var resp VoiceResponse
	err := c.Action(ctx, ActionProcessVoiceInteraction, req, &resp)
	if err != nil {
		if httpErr, ok := AsHTTPError(err); ok {
			return &VoiceResponse{Success: false, Error: httpErr.Error()}, nil
		}
		return nil, err
	}
	return &resp, nil
}
