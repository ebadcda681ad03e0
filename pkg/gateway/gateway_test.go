package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/pommai/toygate/pkg/convex"
	"github.com/pommai/toygate/pkg/observe"
	"github.com/pommai/toygate/pkg/tts"
	"github.com/pommai/toygate/pkg/wire"
)

// fakeBackend serves the action API with a scripted response.
func fakeBackend(t *testing.T, respond func(req *convex.VoiceRequest) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Path string          `json:"path"`
			Args json.RawMessage `json:"args"`
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("bad action request: %v", err)
		}
		if body.Path != convex.ActionProcessVoiceInteraction {
			t.Errorf("action path = %q", body.Path)
		}
		var req convex.VoiceRequest
		if err := json.Unmarshal(body.Args, &req); err != nil {
			t.Errorf("bad action args: %v", err)
		}

		out, _ := json.Marshal(map[string]any{"value": respond(&req)})
		w.Write(out)
	}))
}

// fakeTTS is a scripted synthesis provider.
type fakeTTS struct {
	name   string
	chunks [][]byte
	err    error
}

func (p *fakeTTS) Name() string        { return p.name }
func (p *fakeTTS) AudioFormat() string { return wire.FormatPCM16 }
func (p *fakeTTS) SampleRate() int     { return 16000 }

func (p *fakeTTS) Stream(ctx context.Context, text string, cfg tts.VoiceConfig) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, c := range p.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if p.err != nil {
			yield(nil, p.err)
		}
	}
}

// testGateway wires a gateway onto test servers and dials a device socket.
func testGateway(t *testing.T, backendURL string, opts ...Option) *websocket.Conn {
	t.Helper()

	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	backend := convex.NewClient(backendURL, convex.WithTimeout(5*time.Second))
	g := New(backend, DefaultConfig(), append(opts, WithMetrics(m))...)

	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/dev-1/toy-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// sendFrame writes an encoded frame to the socket.
func sendFrame(t *testing.T, conn *websocket.Conn, m wire.Message) {
	t.Helper()
	data, err := wire.Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatal(err)
	}
}

// readFrame reads and decodes the next frame with a deadline.
func readFrame(t *testing.T, conn *websocket.Conn) wire.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	m, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return m
}

func TestHandshake(t *testing.T) {
	backend := fakeBackend(t, func(*convex.VoiceRequest) any { return map[string]any{"success": true} })
	defer backend.Close()
	conn := testGateway(t, backend.URL)

	sendFrame(t, conn, &wire.Handshake{DeviceID: "dev-1", ToyID: "toy-1"})

	ack, ok := readFrame(t, conn).(*wire.HandshakeAck)
	if !ok {
		t.Fatal("expected handshake_ack")
	}
	if ack.Status != "connected" {
		t.Errorf("status = %q", ack.Status)
	}
	if !strings.HasPrefix(ack.SessionID, "dev-1-") {
		t.Errorf("session_id = %q", ack.SessionID)
	}
}

func TestPingPong(t *testing.T) {
	backend := fakeBackend(t, func(*convex.VoiceRequest) any { return nil })
	defer backend.Close()
	conn := testGateway(t, backend.URL)

	sendFrame(t, conn, &wire.Ping{})
	if _, ok := readFrame(t, conn).(*wire.Pong); !ok {
		t.Fatal("expected pong")
	}
}

func TestControlAck(t *testing.T) {
	backend := fakeBackend(t, func(*convex.VoiceRequest) any { return nil })
	defer backend.Close()
	conn := testGateway(t, backend.URL)

	sendFrame(t, conn, &wire.Control{Command: wire.CommandStartStreaming})

	ack, ok := readFrame(t, conn).(*wire.ControlAck)
	if !ok {
		t.Fatal("expected control_ack")
	}
	if ack.Command != wire.CommandStartStreaming || !ack.OK {
		t.Errorf("ack = %+v", ack)
	}
}

func TestInvalidJSON(t *testing.T) {
	backend := fakeBackend(t, func(*convex.VoiceRequest) any { return nil })
	defer backend.Close()
	conn := testGateway(t, backend.URL)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatal(err)
	}

	e, ok := readFrame(t, conn).(*wire.Error)
	if !ok {
		t.Fatal("expected error frame")
	}
	if e.Code != "invalid_json" {
		t.Errorf("code = %q", e.Code)
	}
}

func TestUnknownMessageType(t *testing.T) {
	backend := fakeBackend(t, func(*convex.VoiceRequest) any { return nil })
	defer backend.Close()
	conn := testGateway(t, backend.URL)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)); err != nil {
		t.Fatal(err)
	}

	e, ok := readFrame(t, conn).(*wire.Error)
	if !ok {
		t.Fatal("expected error frame")
	}
	if e.Code != "unknown_message_type: bogus" {
		t.Errorf("code = %q", e.Code)
	}
}

func TestVoiceInteractionWithStreamedTTS(t *testing.T) {
	var gotReq *convex.VoiceRequest
	backend := fakeBackend(t, func(req *convex.VoiceRequest) any {
		gotReq = req
		return map[string]any{"success": true, "text": "hello there"}
	})
	defer backend.Close()

	registry := tts.NewRegistry()
	registry.Register(&fakeTTS{
		name:   tts.ProviderElevenLabs,
		chunks: [][]byte{make([]byte, 2048)},
	})
	conn := testGateway(t, backend.URL, WithTTS(registry))

	pcm := make([]byte, 640)
	sendFrame(t, conn, &wire.AudioChunk{Payload: wire.AudioPayload{
		Data:     pcm,
		Metadata: wire.AudioMetadata{Format: wire.FormatPCM16, SampleRate: 16000},
	}})
	sendFrame(t, conn, &wire.AudioChunk{Payload: wire.AudioPayload{
		Metadata: wire.AudioMetadata{IsFinal: true, Format: wire.FormatPCM16, SampleRate: 16000},
	}})

	// Status lands first, then text before any audio.
	status, ok := readFrame(t, conn).(*wire.Status)
	if !ok || status.Status != "processing" {
		t.Fatalf("expected processing status, got %+v", status)
	}

	text, ok := readFrame(t, conn).(*wire.TextResponse)
	if !ok {
		t.Fatal("expected text_response before audio")
	}
	if text.Payload.Text != "hello there" {
		t.Errorf("text = %q", text.Payload.Text)
	}

	var audioBytes int
	for {
		audio, ok := readFrame(t, conn).(*wire.AudioResponse)
		if !ok {
			t.Fatal("expected audio_response")
		}
		if audio.Payload.IsTerminal() {
			break
		}
		if audio.Payload.Metadata.Provider != tts.ProviderElevenLabs {
			t.Errorf("provider = %q", audio.Payload.Metadata.Provider)
		}
		audioBytes += len(audio.Payload.Data)
	}
	if audioBytes != 2048 {
		t.Errorf("audio bytes = %d, want 2048", audioBytes)
	}

	// The utterance reached the backend as base64 WAV with skipTTS set.
	if gotReq == nil {
		t.Fatal("backend never called")
	}
	if !gotReq.SkipTTS {
		t.Error("skipTTS = false with streamer configured")
	}
	if gotReq.Metadata.Format != wire.FormatWAV {
		t.Errorf("forward format = %q", gotReq.Metadata.Format)
	}
	wavBytes, err := base64.StdEncoding.DecodeString(gotReq.AudioData)
	if err != nil {
		t.Fatalf("audioData not base64: %v", err)
	}
	if len(wavBytes) != 44+len(pcm) {
		t.Errorf("wav = %d bytes, want %d", len(wavBytes), 44+len(pcm))
	}
}

func TestPipelineFailureSendsError(t *testing.T) {
	backend := fakeBackend(t, func(*convex.VoiceRequest) any {
		return map[string]any{"success": false, "error": "no toy configured"}
	})
	defer backend.Close()
	conn := testGateway(t, backend.URL)

	sendFrame(t, conn, &wire.AudioChunk{Payload: wire.AudioPayload{
		Data:     make([]byte, 640),
		Metadata: wire.AudioMetadata{IsFinal: true, Format: wire.FormatPCM16, SampleRate: 16000},
	}})

	if _, ok := readFrame(t, conn).(*wire.Status); !ok {
		t.Fatal("expected processing status")
	}
	e, ok := readFrame(t, conn).(*wire.Error)
	if !ok {
		t.Fatal("expected error frame")
	}
	if e.Code != "no toy configured" {
		t.Errorf("code = %q", e.Code)
	}
}

func TestTTSFailureSendsTTSFailed(t *testing.T) {
	backend := fakeBackend(t, func(*convex.VoiceRequest) any {
		return map[string]any{"success": true, "text": "hi"}
	})
	defer backend.Close()

	registry := tts.NewRegistry()
	registry.Register(&fakeTTS{name: tts.ProviderElevenLabs, err: io.ErrUnexpectedEOF})
	conn := testGateway(t, backend.URL, WithTTS(registry))

	sendFrame(t, conn, &wire.AudioChunk{Payload: wire.AudioPayload{
		Data:     make([]byte, 640),
		Metadata: wire.AudioMetadata{IsFinal: true, Format: wire.FormatPCM16, SampleRate: 16000},
	}})

	if _, ok := readFrame(t, conn).(*wire.Status); !ok {
		t.Fatal("expected processing status")
	}
	if _, ok := readFrame(t, conn).(*wire.TextResponse); !ok {
		t.Fatal("expected text_response")
	}
	e, ok := readFrame(t, conn).(*wire.Error)
	if !ok {
		t.Fatal("expected error frame")
	}
	if e.Code != "TTS_FAILED" {
		t.Errorf("code = %q", e.Code)
	}
}

func TestRelayBackendAudioWithoutStreamer(t *testing.T) {
	rendered := []byte{9, 8, 7, 6}
	backend := fakeBackend(t, func(req *convex.VoiceRequest) any {
		if req.SkipTTS {
			t.Error("skipTTS = true with no streamer")
		}
		return map[string]any{
			"success":   true,
			"text":      "hi",
			"audioData": base64.StdEncoding.EncodeToString(rendered),
			"format":    "mp3",
		}
	})
	defer backend.Close()
	conn := testGateway(t, backend.URL)

	sendFrame(t, conn, &wire.AudioChunk{Payload: wire.AudioPayload{
		Data:     make([]byte, 640),
		Metadata: wire.AudioMetadata{IsFinal: true, Format: wire.FormatPCM16, SampleRate: 16000},
	}})

	if _, ok := readFrame(t, conn).(*wire.Status); !ok {
		t.Fatal("expected processing status")
	}
	if _, ok := readFrame(t, conn).(*wire.TextResponse); !ok {
		t.Fatal("expected text_response")
	}
	audio, ok := readFrame(t, conn).(*wire.AudioResponse)
	if !ok {
		t.Fatal("expected audio_response")
	}
	if !audio.Payload.Metadata.IsFinal {
		t.Error("relayed audio not marked final")
	}
	if string(audio.Payload.Data) != string(rendered) {
		t.Errorf("audio = %v", audio.Payload.Data)
	}
	if audio.Payload.Metadata.Format != "mp3" {
		t.Errorf("format = %q", audio.Payload.Metadata.Format)
	}
}

func TestIdleReaperClosesSilentSessions(t *testing.T) {
	backendSrv := fakeBackend(t, func(*convex.VoiceRequest) any { return nil })
	defer backendSrv.Close()

	mp := sdkmetric.NewMeterProvider()
	defer mp.Shutdown(context.Background())
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	backend := convex.NewClient(backendSrv.URL)
	g := New(backend, Config{
		KeepAlive:    time.Second,
		IdleTimeout:  50 * time.Millisecond,
		ReapInterval: 20 * time.Millisecond,
	}, WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/dev-1/toy-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sendFrame(t, conn, &wire.Handshake{DeviceID: "dev-1", ToyID: "toy-1"})
	if _, ok := readFrame(t, conn).(*wire.HandshakeAck); !ok {
		t.Fatal("expected handshake_ack")
	}
	if n := g.SessionCount(); n != 1 {
		t.Fatalf("sessions = %d, want 1", n)
	}

	// The session goes silent; the reaper must remove it.
	deadline := time.Now().Add(2 * time.Second)
	for g.SessionCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := g.SessionCount(); n != 0 {
		t.Fatalf("sessions = %d after idle timeout, want 0", n)
	}

	// The reaper closed the socket server-side.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestPipelineTimeoutSendsTimeoutError(t *testing.T) {
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client-side abort;
		// with unread body bytes net/http never starts the background
		// read that cancels the request context on disconnect.
		io.Copy(io.Discard, r.Body)
		// Outlast the action timeout; the aborted call ends the wait.
		<-r.Context().Done()
	}))
	defer backendSrv.Close()

	mp := sdkmetric.NewMeterProvider()
	defer mp.Shutdown(context.Background())
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	backend := convex.NewClient(backendSrv.URL, convex.WithTimeout(200*time.Millisecond))
	g := New(backend, DefaultConfig(), WithMetrics(m))

	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/dev-1/toy-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sendFrame(t, conn, &wire.AudioChunk{Payload: wire.AudioPayload{
		Data:     make([]byte, 640),
		Metadata: wire.AudioMetadata{IsFinal: true, Format: wire.FormatPCM16, SampleRate: 16000},
	}})

	if _, ok := readFrame(t, conn).(*wire.Status); !ok {
		t.Fatal("expected processing status")
	}
	e, ok := readFrame(t, conn).(*wire.Error)
	if !ok {
		t.Fatal("expected error frame")
	}
	if e.Code != "convex_timeout_after_0.2s" {
		t.Errorf("code = %q, want convex_timeout_after_0.2s", e.Code)
	}
}

func TestDisconnectCancelsPipelineCall(t *testing.T) {
	canceled := make(chan struct{})
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the disconnect can cancel the request context
		// (see TestPipelineTimeoutSendsTimeoutError).
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
			close(canceled)
		case <-time.After(5 * time.Second):
		}
	}))
	defer backendSrv.Close()
	conn := testGateway(t, backendSrv.URL)

	sendFrame(t, conn, &wire.AudioChunk{Payload: wire.AudioPayload{
		Data:     make([]byte, 640),
		Metadata: wire.AudioMetadata{IsFinal: true, Format: wire.FormatPCM16, SampleRate: 16000},
	}})

	// The processing status confirms the dispatch goroutine is in flight.
	if _, ok := readFrame(t, conn).(*wire.Status); !ok {
		t.Fatal("expected processing status")
	}
	conn.Close()

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("backend call still running after disconnect")
	}
}

func TestHealthEndpoint(t *testing.T) {
	backendSrv := fakeBackend(t, func(*convex.VoiceRequest) any { return nil })
	defer backendSrv.Close()

	mp := sdkmetric.NewMeterProvider()
	defer mp.Shutdown(context.Background())
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	registry := tts.NewRegistry()
	registry.Register(&fakeTTS{name: tts.ProviderMiniMax})

	backend := convex.NewClient(backendSrv.URL)
	g := New(backend, DefaultConfig(), WithTTS(registry), WithMetrics(m))

	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" || health.Type != "relay" {
		t.Errorf("health = %+v", health)
	}
	if health.TTSStreaming != "enabled" {
		t.Errorf("tts_streaming = %q", health.TTSStreaming)
	}
	if len(health.TTSProviders) != 1 || health.TTSProviders[0] != tts.ProviderMiniMax {
		t.Errorf("tts_providers = %v", health.TTSProviders)
	}
}
