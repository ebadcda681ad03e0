package device

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pommai/toygate/pkg/wire"
)

// Watchdog and recovery timing.
const (
	// playbackWatchdog starts playback if inbound audio arrived after the
	// terminal outbound marker but no text_response did. The text frame is
	// the normal trigger; the watchdog covers a backend that produced
	// audio without text.
	playbackWatchdog = 500 * time.Millisecond

	// errorHold is how long the error state is displayed before recovery.
	errorHold = 2 * time.Second

	// wakeWordRecordLimit auto-stops a wake-word-initiated utterance.
	wakeWordRecordLimit = 5 * time.Second
)

// WakeDetector listens for the wake phrase. Detect blocks until the phrase
// is heard or ctx ends.
type WakeDetector interface {
	Detect(ctx context.Context) (bool, error)
}

// EngineConfig configures the device engine.
type EngineConfig struct {
	Conn     ConnConfig
	Recorder RecorderConfig
	Player   PlayerConfig

	// EnableWakeWord runs the wake loop when a detector is provided.
	EnableWakeWord bool
}

// Engine is the toy's top-level controller: it owns the state machine and
// wires the connection, capture, and playback pipelines together.
type Engine struct {
	cfg      EngineConfig
	conn     *Conn
	recorder *Recorder
	player   *Player
	leds     LEDRenderer
	cache    Cache
	wake     WakeDetector

	mu           sync.Mutex
	state        State
	lastQuestion string

	// interaction context for cache writes
	toyID string
}

// EngineOption configures optional engine parts.
type EngineOption func(*Engine)

// WithLEDs sets the indicator renderer. Default logs patterns.
func WithLEDs(r LEDRenderer) EngineOption {
	return func(e *Engine) { e.leds = r }
}

// WithCache enables the offline conversation cache.
func WithCache(c Cache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithWakeWord sets the wake phrase detector.
func WithWakeWord(d WakeDetector) EngineOption {
	return func(e *Engine) { e.wake = d }
}

// NewEngine builds an Engine around a microphone source and a speaker sink.
// enc encodes outbound capture frames; dec decodes inbound opus payloads
// and may be nil for PCM-only streams.
func NewEngine(cfg EngineConfig, mic io.Reader, sink io.Writer, enc FrameEncoder, dec FrameDecoder, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:   cfg,
		conn:  NewConn(cfg.Conn),
		state: StateIdle,
		leds:  LogLEDs{},
		toyID: cfg.Conn.ToyID,
	}
	e.recorder = NewRecorder(mic, enc, e.conn, cfg.Recorder)
	e.recorder.OnSilence = func() {
		slog.Info("silence detected, auto-stopping recording")
		e.StopRecording(context.Background())
	}
	e.player = NewPlayer(e.conn.Audio, sink, dec, cfg.Player)

	for _, opt := range opts {
		opt(e)
	}

	e.conn.OnMessage(wire.TypeTextResponse, e.handleTextResponse)
	e.conn.OnMessage(wire.TypeAudioResponse, e.handleAudioResponse)
	e.conn.OnMessage(wire.TypeError, e.handleServerError)
	e.conn.OnMessage(wire.TypeConfigUpdate, e.handleConfigUpdate)
	e.conn.OnMessage(wire.TypeToyState, e.handleToyState)
	e.conn.OnMessage(wire.TypeStatus, e.handleStatus)
	return e
}

// Conn exposes the underlying gateway connection.
func (e *Engine) Conn() *Conn { return e.conn }

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// setState transitions the state machine and drives the LED pattern.
func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()
	if prev != s {
		slog.Info("state transition", "from", prev, "to", s)
		e.leds.Set(patternForState(s))
	}
}

// Start connects to the gateway and begins the wake loop if configured.
func (e *Engine) Start(ctx context.Context) error {
	e.leds.Set(LEDStartup)
	e.setState(StateConnecting)

	if err := e.conn.Connect(ctx); err != nil {
		e.setState(StateOffline)
		return err
	}
	e.setState(StateIdle)

	if e.cfg.EnableWakeWord && e.wake != nil {
		go e.wakeLoop(ctx)
	}
	go e.monitorConnection(ctx)
	return nil
}

// Close tears the engine down.
func (e *Engine) Close() error {
	if e.recorder.Recording() {
		e.recorder.Stop()
	}
	err := e.conn.Close()
	if e.cache != nil {
		if cerr := e.cache.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// OnButtonPress starts an utterance. Presses outside idle are ignored.
func (e *Engine) OnButtonPress(ctx context.Context) {
	if !e.State().CanRecord() {
		slog.Warn("button pressed while busy, ignoring", "state", e.State())
		return
	}
	slog.Info("button pressed, starting recording")
	e.StartRecording(ctx)
}

// OnButtonRelease ends the utterance started by OnButtonPress.
func (e *Engine) OnButtonRelease(ctx context.Context) {
	if e.State() != StateListening {
		return
	}
	slog.Info("button released, stopping recording")
	e.StopRecording(ctx)
}

// StartRecording enters listening and starts the capture pipeline.
func (e *Engine) StartRecording(ctx context.Context) {
	if e.recorder.Recording() {
		return
	}
	e.setState(StateListening)
	if err := e.recorder.Start(ctx); err != nil {
		slog.Error("start recording", "err", err)
		e.fail()
		return
	}
}

// StopRecording ends the utterance, enters processing, and arms the
// playback watchdog.
func (e *Engine) StopRecording(ctx context.Context) {
	if !e.recorder.Recording() {
		return
	}
	e.setState(StateProcessing)
	e.player.SetReceiving(true)
	if err := e.recorder.Stop(); err != nil {
		e.fail()
		return
	}

	e.mu.Lock()
	e.lastQuestion = "" // transcript comes back with the response
	e.mu.Unlock()

	go e.watchdog(ctx)
}

// watchdog starts playback if audio arrived but the text trigger never did.
func (e *Engine) watchdog(ctx context.Context) {
	timer := time.NewTimer(playbackWatchdog)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if e.player.Running() || e.State() != StateProcessing {
		return
	}
	if e.conn.Audio.Len() == 0 {
		return
	}
	slog.Warn("playback watchdog fired: audio buffered with no text trigger")
	e.startPlayback(ctx)
}

// handleTextResponse is the playback trigger.
func (e *Engine) handleTextResponse(msg wire.Message) {
	tr := msg.(*wire.TextResponse)
	slog.Info("text response received", "len", len(tr.Payload.Text))

	if e.cache != nil {
		e.saveInteraction(tr.Payload.Text)
	}

	if e.player.Running() {
		slog.Warn("text response while playback already running, ignoring trigger")
		return
	}
	e.startPlayback(context.Background())
}

// startPlayback runs one playback session on its own goroutine.
func (e *Engine) startPlayback(ctx context.Context) {
	e.setState(StateSpeaking)
	go func() {
		err := e.player.Play(ctx)
		if err != nil && ctx.Err() == nil {
			slog.Error("playback failed", "err", err)
		}
		if e.State() == StateSpeaking {
			e.setState(StateIdle)
		}
	}()
}

// handleAudioResponse tracks end-of-stream; the payload itself is queued by
// the connection before this handler runs.
func (e *Engine) handleAudioResponse(msg wire.Message) {
	ar := msg.(*wire.AudioResponse)
	if ar.Payload.Metadata.IsFinal {
		e.player.SetReceiving(false)
	}
}

// handleServerError shows the error pattern briefly, then recovers.
func (e *Engine) handleServerError(msg wire.Message) {
	errFrame := msg.(*wire.Error)
	slog.Error("server error", "code", errFrame.Code, "message", errFrame.Message)

	e.player.SetReceiving(false)
	e.setState(StateError)
	go func() {
		time.Sleep(errorHold)
		if e.State() == StateError {
			e.setState(StateIdle)
		}
	}()
}

// handleConfigUpdate applies runtime configuration pushed by the gateway.
func (e *Engine) handleConfigUpdate(msg wire.Message) {
	cu := msg.(*wire.ConfigUpdate)
	slog.Info("configuration update received", "config", cu.Config)
	if toyID, ok := cu.Config["toyId"]; ok && toyID != "" {
		e.mu.Lock()
		e.toyID = toyID
		e.mu.Unlock()
	}
}

func (e *Engine) handleToyState(msg wire.Message) {
	ts := msg.(*wire.ToyState)
	slog.Info("toy state update", "state", ts.State)
}

func (e *Engine) handleStatus(msg wire.Message) {
	st := msg.(*wire.Status)
	slog.Debug("gateway status", "status", st.Status, "message", st.Message)
}

// saveInteraction records the turn in the offline cache.
func (e *Engine) saveInteraction(response string) {
	e.mu.Lock()
	toyID := e.toyID
	question := e.lastQuestion
	e.mu.Unlock()

	err := e.cache.Save(context.Background(), Interaction{
		ToyID:     toyID,
		Question:  question,
		Response:  response,
		WasOnline: true,
	})
	if err != nil {
		slog.Warn("cache interaction", "err", err)
	}
}

// fail enters the error state and recovers to idle after the hold.
func (e *Engine) fail() {
	e.setState(StateError)
	go func() {
		time.Sleep(errorHold)
		if e.State() == StateError {
			e.setState(StateIdle)
		}
	}()
}

// wakeLoop starts an utterance when the wake phrase is heard, with an
// auto-stop in case the button release never comes.
func (e *Engine) wakeLoop(ctx context.Context) {
	slog.Info("wake word detection started")
	for {
		if ctx.Err() != nil {
			return
		}
		if !e.State().CanRecord() {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		detected, err := e.wake.Detect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("wake word detection error", "err", err)
			time.Sleep(time.Second)
			continue
		}
		if !detected {
			continue
		}

		slog.Info("wake word detected")
		e.StartRecording(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wakeWordRecordLimit):
		}
		if e.recorder.Recording() {
			e.StopRecording(ctx)
		}
	}
}

// monitorConnection mirrors transport state into the engine state.
func (e *Engine) monitorConnection(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		connected := e.conn.IsConnected()
		state := e.State()
		switch {
		case !connected && state != StateOffline && !state.IsActive():
			e.setState(StateOffline)
		case connected && state == StateOffline:
			e.setState(StateIdle)
		}
	}
}

// EngineStats aggregates pipeline counters for diagnostics.
type EngineStats struct {
	State          string      `json:"state"`
	FramesRecorded int64       `json:"chunks_recorded"`
	Playback       PlayerStats `json:"playback"`
	Conn           ConnStats   `json:"connection"`
}

// Stats returns a point-in-time snapshot.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		State:          e.State().String(),
		FramesRecorded: e.recorder.FramesSent(),
		Playback:       e.player.Stats(),
		Conn:           e.conn.Stats(),
	}
}
