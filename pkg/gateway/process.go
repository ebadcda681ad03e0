package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pommai/toygate/pkg/audio/wav"
	"github.com/pommai/toygate/pkg/convex"
	"github.com/pommai/toygate/pkg/jsontime"
	"github.com/pommai/toygate/pkg/tts"
	"github.com/pommai/toygate/pkg/wire"
)

// handleAudioChunk buffers utterance audio and, on the final chunk,
// schedules the AI pipeline call off the read loop.
func (g *Gateway) handleAudioChunk(s *Session, p *wire.AudioPayload) {
	ctx := context.Background()
	format := strings.ToLower(p.Metadata.Format)
	if format == "" {
		format = wire.FormatOpus
	}
	sampleRate := p.Metadata.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}

	if len(p.Data) == 0 {
		if !p.Metadata.IsFinal {
			slog.Debug("empty non-final audio chunk ignored", "session", s.ID)
			return
		}
		if s.bufferedAudio() == 0 {
			slog.Warn("final marker with no buffered audio", "session", s.ID)
			return
		}
		slog.Info("final marker with empty data, processing buffered audio",
			"session", s.ID, "buffered", s.bufferedAudio())
	} else {
		total := s.appendAudio(p.Data)
		g.metrics.AudioBytesIn.Add(ctx, int64(len(p.Data)))
		slog.Debug("audio chunk buffered",
			"session", s.ID, "bytes", len(p.Data), "total", total, "final", p.Metadata.IsFinal, "format", format)
	}

	if !p.Metadata.IsFinal || s.bufferedAudio() == 0 {
		return
	}

	utterance := s.takeAudio()
	slog.Info("processing complete audio", "session", s.ID, "bytes", len(utterance), "format", format)

	forward, forwardFormat := packageForBackend(utterance, format, sampleRate)

	req := &convex.VoiceRequest{
		ToyID:     s.ToyID,
		AudioData: base64.StdEncoding.EncodeToString(forward),
		SessionID: s.ID,
		DeviceID:  s.DeviceID,
		// Synthesis happens here when a streamer is configured, so the
		// backend should not render audio.
		SkipTTS: g.cfg.SkipTTS || g.streamer != nil,
		Metadata: convex.VoiceRequestMetadata{
			Timestamp: jsontime.NowEpochMilli(),
			Format:    forwardFormat,
			Duration:  p.Metadata.Duration,
		},
	}

	// Immediate status so the device knows the utterance landed.
	if err := s.send(&wire.Status{Status: "processing", Message: "Audio received, processing with AI..."}); err != nil {
		slog.Error("send processing status", "session", s.ID, "err", err)
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.processAndRespond(s, req)
	}()
}

// packageForBackend containerizes a finished utterance for the recognizer.
// PCM is wrapped in WAV so the backend needs no out-of-band sample rate;
// WAV passes through; anything else is forwarded raw.
func packageForBackend(audio []byte, format string, sampleRate int) ([]byte, string) {
	switch format {
	case wire.FormatPCM16:
		wrapped := wav.Encode(audio, sampleRate)
		slog.Info("packaged PCM16 as WAV", "bytes", len(wrapped), "sample_rate", sampleRate)
		return wrapped, wire.FormatWAV
	case wire.FormatWAV, "wave":
		return audio, wire.FormatWAV
	case wire.FormatOpus:
		slog.Warn("forwarding raw Opus bytes, backend recognizer may require a container")
		return audio, wire.FormatOpus
	default:
		slog.Warn("unsupported audio format, forwarding raw bytes", "format", format)
		return audio, format
	}
}

// processAndRespond runs the AI pipeline off the read loop and streams the
// response back when it is ready.
func (g *Gateway) processAndRespond(s *Session, req *convex.VoiceRequest) {
	// Bound to the session lifetime: a disconnect aborts the backend call
	// rather than waiting out its timeout.
	ctx := s.ctx
	started := time.Now()
	slog.Info("calling AI pipeline", "toy", req.ToyID, "session", s.ID)

	// Keep the device informed while the pipeline runs.
	stopStatus := make(chan struct{})
	defer close(stopStatus)
	go func() {
		ticker := time.NewTicker(g.cfg.StatusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopStatus:
				return
			case <-ticker.C:
				if s.isClosed() {
					return
				}
				if err := s.send(&wire.Status{Status: "processing", Message: "Still processing your request..."}); err != nil {
					return
				}
			}
		}
	}()

	result, err := g.backend.ProcessVoiceInteraction(ctx, req)
	elapsed := time.Since(started)
	g.metrics.ConvexDuration.Record(ctx, elapsed.Seconds())

	if err != nil {
		if s.isClosed() {
			return
		}
		if errors.Is(err, convex.ErrTimeout) {
			slog.Error("AI pipeline timed out", "session", s.ID, "timeout", g.backend.Timeout())
			g.sendError(s, fmt.Sprintf("convex_timeout_after_%.1fs", g.backend.Timeout().Seconds()), "")
			return
		}
		slog.Error("AI pipeline call failed", "session", s.ID, "err", err)
		g.sendError(s, fmt.Sprintf("Failed to process AI request: %v", err), "")
		return
	}

	slog.Info("AI pipeline result",
		"session", s.ID, "success", result.Success, "processing_time", result.ProcessingTime, "gateway_call", elapsed)

	if s.isClosed() {
		slog.Warn("client disconnected before AI response was ready", "device", s.DeviceID)
		return
	}

	if !result.Success {
		errMsg := result.Error
		if errMsg == "" {
			errMsg = "Unknown error from AI pipeline"
		}
		slog.Error("AI pipeline error", "session", s.ID, "error", errMsg)
		g.sendError(s, errMsg, "")
		return
	}

	// Text first: receipt of text_response arms device playback, and the
	// device discards audio_response frames that arrive before it.
	err = s.send(&wire.TextResponse{Payload: wire.TextPayload{
		Text:      result.Text,
		Timestamp: jsontime.NowEpoch(),
	}})
	if err != nil {
		slog.Error("send text response", "session", s.ID, "err", err)
		return
	}

	if g.streamer != nil && result.Text != "" && !g.cfg.SkipTTS {
		g.streamTTS(ctx, s, result)
		return
	}

	g.relayBackendAudio(ctx, s, result)
}

// streamTTS synthesizes the reply and streams it to the device.
func (g *Gateway) streamTTS(ctx context.Context, s *Session, result *convex.VoiceResponse) {
	text := result.Text
	slog.Info("streaming TTS", "session", s.ID, "text_len", len(text))
	started := time.Now()

	var chunksSent, bytesSent int
	var lastMeta tts.Chunk
	for chunk, err := range g.streamer.Stream(ctx, text, result.ToyConfig.TTSProvider, result.ToyConfig.VoiceConfig) {
		if err != nil {
			g.metrics.RecordTTS(ctx, result.ToyConfig.TTSProvider, time.Since(started).Seconds(), err)
			slog.Error("TTS streaming failed", "session", s.ID, "err", err)
			if !s.isClosed() {
				g.sendError(s, "TTS_FAILED", "Text-to-speech service unavailable")
			}
			return
		}
		if s.isClosed() {
			slog.Warn("websocket closed during TTS streaming", "session", s.ID)
			return
		}

		lastMeta = chunk
		sendErr := s.send(&wire.AudioResponse{Payload: wire.AudioPayload{
			Data: chunk.Audio,
			Metadata: wire.AudioMetadata{
				IsFinal:    false,
				Format:     chunk.Format,
				SampleRate: chunk.SampleRate,
				Channels:   1,
				Endian:     "le",
				Provider:   chunk.Provider,
			},
		}})
		if sendErr != nil {
			slog.Error("send audio response", "session", s.ID, "err", sendErr)
			return
		}
		chunksSent++
		bytesSent += len(chunk.Audio)
		g.metrics.AudioBytesOut.Add(ctx, int64(len(chunk.Audio)))
	}

	g.metrics.RecordTTS(ctx, lastMeta.Provider, time.Since(started).Seconds(), nil)
	slog.Info("TTS streaming completed", "session", s.ID, "chunks", chunksSent, "bytes", bytesSent)

	if s.isClosed() {
		return
	}
	// Terminal marker so the device can close out playback.
	err := s.send(&wire.AudioResponse{Payload: wire.AudioPayload{
		Metadata: wire.AudioMetadata{
			IsFinal:    true,
			Format:     lastMeta.Format,
			SampleRate: lastMeta.SampleRate,
			Channels:   1,
			Endian:     "le",
			Provider:   lastMeta.Provider,
		},
	}})
	if err != nil {
		slog.Error("send final audio marker", "session", s.ID, "err", err)
	}
}

// relayBackendAudio forwards pipeline-rendered audio when the relay does
// not synthesize locally.
func (g *Gateway) relayBackendAudio(ctx context.Context, s *Session, result *convex.VoiceResponse) {
	if result.AudioData == "" {
		slog.Info("no TTS audio in pipeline response", "session", s.ID)
		return
	}

	audio, err := base64.StdEncoding.DecodeString(result.AudioData)
	if err != nil {
		slog.Error("decode pipeline audio", "session", s.ID, "err", err)
		return
	}

	format := result.Format
	if format == "" {
		format = "mp3"
	}

	g.metrics.AudioBytesOut.Add(ctx, int64(len(audio)))
	sendErr := s.send(&wire.AudioResponse{Payload: wire.AudioPayload{
		Data: audio,
		Metadata: wire.AudioMetadata{
			IsFinal:    true,
			Format:     format,
			SampleRate: 22050,
			Timestamp:  jsontime.NowEpoch(),
		},
	}})
	if sendErr != nil {
		slog.Error("relay pipeline audio", "session", s.ID, "err", sendErr)
		return
	}
	slog.Info("relayed pipeline audio", "session", s.ID, "bytes", len(audio))
}
