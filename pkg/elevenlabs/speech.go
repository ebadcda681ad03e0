package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// SpeechService provides speech synthesis operations.
type SpeechService struct {
	client *Client
}

// newSpeechService creates a new speech service.
func newSpeechService(client *Client) *SpeechService {
	return &SpeechService{client: client}
}

// SpeechRequest is the request for speech synthesis.
type SpeechRequest struct {
	// Text is the text to synthesize.
	Text string `json:"text"`

	// ModelID selects the synthesis model. Defaults to DefaultModelID.
	ModelID string `json:"model_id,omitempty"`

	// VoiceID selects the voice. Defaults to DefaultVoiceID. Sent in the
	// URL, not the body.
	VoiceID string `json:"-"`

	// SampleRate is the PCM output sample rate in Hz. Defaults to 16000.
	// Sent as the output_format query parameter, not the body.
	SampleRate int `json:"-"`

	// VoiceSettings tunes the voice. Defaults to stability 0.5 and
	// similarity boost 0.75.
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`

	// OptimizeStreamingLatency trades quality for latency (0-4).
	OptimizeStreamingLatency int `json:"optimize_streaming_latency,omitempty"`
}

// VoiceSettings tunes voice reproduction.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// fillDefaults applies request defaults in place.
func (req *SpeechRequest) fillDefaults() {
	if req.ModelID == "" {
		req.ModelID = DefaultModelID
	}
	if req.VoiceID == "" {
		req.VoiceID = DefaultVoiceID
	}
	if req.SampleRate == 0 {
		req.SampleRate = 16000
	}
	if req.VoiceSettings == nil {
		req.VoiceSettings = &VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	}
	if req.OptimizeStreamingLatency == 0 {
		req.OptimizeStreamingLatency = 3
	}
}

// SynthesizeStream streams raw PCM16 audio for the given text.
//
// The iterator yields audio byte slices as they arrive off the wire. The
// connection is closed when iteration completes or breaks.
func (s *SpeechService) SynthesizeStream(ctx context.Context, req *SpeechRequest) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		req.fillDefaults()

		url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=pcm_%d",
			s.client.config.baseURL, req.VoiceID, req.SampleRate)

		body, err := json.Marshal(req)
		if err != nil {
			yield(nil, fmt.Errorf("marshal request body: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			yield(nil, fmt.Errorf("create request: %w", err))
			return
		}
		httpReq.Header.Set("xi-api-key", s.client.config.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		// audio/basic selects raw PCM; the default answer is MP3.
		httpReq.Header.Set("Accept", "audio/basic")

		slog.Debug("ElevenLabs SynthesizeStream starting",
			"voice_id", req.VoiceID, "model_id", req.ModelID, "text_len", len(req.Text))

		resp, err := s.client.config.httpClient.Do(httpReq)
		if err != nil {
			yield(nil, fmt.Errorf("do request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			yield(nil, &Error{HTTPStatus: resp.StatusCode, Detail: strings.TrimSpace(string(detail))})
			return
		}

		if err := checkPCMContentType(resp.Header.Get("Content-Type")); err != nil {
			yield(nil, err)
			return
		}

		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !yield(chunk, nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("read stream: %w", err))
				return
			}
		}
	}
}

// Synthesize collects the whole stream into one buffer.
func (s *SpeechService) Synthesize(ctx context.Context, req *SpeechRequest) ([]byte, error) {
	var out []byte
	for chunk, err := range s.SynthesizeStream(ctx, req) {
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// checkPCMContentType verifies the response carries raw PCM and not a
// transcoded container.
func checkPCMContentType(ct string) error {
	lower := strings.ToLower(ct)
	for _, ok := range []string{"audio/pcm", "audio/basic", "application/octet-stream"} {
		if strings.Contains(lower, ok) {
			return nil
		}
	}
	return fmt.Errorf("elevenlabs: expected PCM audio but received %s", strconv.Quote(ct))
}
