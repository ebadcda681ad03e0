package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pommai/toygate/pkg/buffer"
	"github.com/pommai/toygate/pkg/jsontime"
	"github.com/pommai/toygate/pkg/wire"
)

// ConnState tracks the transport lifecycle.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
	ConnReconnecting
	ConnFailed
)

// String returns the string representation of the connection state.
func (cs ConnState) String() string {
	switch cs {
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnReconnecting:
		return "reconnecting"
	case ConnFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// ErrNotConnected is returned by sends attempted while the transport is down.
var ErrNotConnected = errors.New("device: not connected")

// ConnConfig configures the gateway connection.
type ConnConfig struct {
	// GatewayURL is the base ws[s]:// URL; the device path is appended.
	GatewayURL string

	DeviceID  string
	ToyID     string
	AuthToken string

	// ReconnectAttempts bounds consecutive failed reconnects before the
	// connection gives up. Default 5.
	ReconnectAttempts int

	// ReconnectDelay is the backoff base. The delay doubles per attempt
	// and is capped at 60 seconds. Default 2s.
	ReconnectDelay time.Duration

	// PingInterval is the application heartbeat period. Default 30s.
	PingInterval time.Duration

	// PingTimeout is how long the reader waits without traffic before the
	// transport is considered dead. Must be long enough to sit out an AI
	// call. Default 60s.
	PingTimeout time.Duration

	// AudioFormat and SampleRate describe outbound capture audio.
	AudioFormat string
	SampleRate  int

	// QueueSize caps the inbound audio queue. Default 1000.
	QueueSize int
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 5
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 60 * time.Second
	}
	if c.AudioFormat == "" {
		c.AudioFormat = wire.FormatPCM16
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	return c
}

// wsURL builds the device endpoint from the configured base.
func (c ConnConfig) wsURL() (string, error) {
	u, err := url.Parse(c.GatewayURL)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	u = u.JoinPath("ws", c.DeviceID, c.ToyID)
	return u.String(), nil
}

// InboundAudio is one audio_response payload queued for playback. A frame
// with empty Data and IsFinal set is the terminal marker and is queued like
// any other entry so the consumer sees it.
type InboundAudio struct {
	Data     []byte
	Metadata wire.AudioMetadata
}

// Handler processes one inbound frame. Handlers run on the reader goroutine
// and must not block.
type Handler func(msg wire.Message)

// interactionGap is the outbound silence that marks a new interaction.
// Residual inbound entries older than this are stale and get drained so a
// previous turn cannot bleed into the next playback.
const interactionGap = 1500 * time.Millisecond

// Conn is the device's connection to the gateway.
//
// A single reader goroutine dispatches inbound frames to registered
// handlers; audio_response frames are additionally pushed onto Audio. All
// sends are serialized through one internal writer.
type Conn struct {
	cfg ConnConfig

	// Audio receives every inbound audio_response payload, terminal
	// markers included. Drop-oldest on overflow.
	Audio *buffer.Queue[InboundAudio]

	mu            sync.Mutex
	ws            *websocket.Conn
	state         ConnState
	sessionID     string
	reconnects    int
	totalRecon    int
	lastActivity  time.Time
	lastAudioSend time.Time
	handlers      map[wire.Type]Handler
	stopRead      chan struct{}
	stopBeat      chan struct{}

	writeMu sync.Mutex
}

// NewConn creates an unconnected Conn.
func NewConn(cfg ConnConfig) *Conn {
	cfg = cfg.withDefaults()
	return &Conn{
		cfg:      cfg,
		Audio:    buffer.NewQueue[InboundAudio](cfg.QueueSize),
		state:    ConnDisconnected,
		handlers: make(map[wire.Type]Handler),
	}
}

// OnMessage registers a handler for a frame type, replacing any previous
// handler. Registration must happen before Connect.
func (c *Conn) OnMessage(t wire.Type, h Handler) {
	c.mu.Lock()
	c.handlers[t] = h
	c.mu.Unlock()
}

// Connect dials the gateway, sends the handshake, and starts the reader and
// heartbeat. It resets the reconnect counter on success.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == ConnConnected {
		c.mu.Unlock()
		slog.Warn("already connected")
		return nil
	}
	c.state = ConnConnecting
	c.mu.Unlock()

	endpoint, err := c.cfg.wsURL()
	if err != nil {
		c.setState(ConnFailed)
		return err
	}

	header := http.Header{}
	header.Set("X-Device-ID", c.cfg.DeviceID)
	header.Set("X-Toy-ID", c.cfg.ToyID)
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	slog.Info("connecting to gateway", "url", endpoint)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		c.setState(ConnFailed)
		return fmt.Errorf("dial gateway: %w", err)
	}

	stopRead := make(chan struct{})
	stopBeat := make(chan struct{})
	c.mu.Lock()
	c.ws = ws
	c.stopRead = stopRead
	c.stopBeat = stopBeat
	c.state = ConnConnected
	c.reconnects = 0
	c.lastActivity = time.Now()
	c.mu.Unlock()

	if err := c.sendHandshake(); err != nil {
		c.teardown()
		return err
	}

	ws.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout))
	})

	go c.readLoop(ws, stopRead)
	go c.heartbeatLoop(ws, stopBeat)

	slog.Info("connected to gateway", "device", c.cfg.DeviceID, "toy", c.cfg.ToyID)
	return nil
}

// sendHandshake advertises the device identity and capabilities.
func (c *Conn) sendHandshake() error {
	err := c.Send(&wire.Handshake{
		DeviceID: c.cfg.DeviceID,
		ToyID:    c.cfg.ToyID,
		Capabilities: wire.Capabilities{
			Audio:       true,
			WakeWord:    true,
			OfflineMode: true,
			Opus:        c.cfg.AudioFormat == wire.FormatOpus,
			SampleRate:  c.cfg.SampleRate,
		},
		Timestamp: jsontime.NowEpoch(),
	})
	if err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	slog.Debug("handshake sent")
	return nil
}

// Send serializes and writes one frame.
func (c *Conn) Send(m wire.Message) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	data, err := wire.Encode(m)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", m.FrameType(), err)
	}

	c.writeMu.Lock()
	err = ws.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		go c.handleTransportError(err)
		return err
	}

	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
	return nil
}

// SendAudioChunk sends one outbound capture chunk. A gap longer than
// interactionGap since the previous chunk starts a new interaction and
// drains residual inbound audio first.
func (c *Conn) SendAudioChunk(data []byte, final bool) error {
	if c.State() != ConnConnected {
		slog.Warn("cannot send audio: not connected")
		return ErrNotConnected
	}

	c.mu.Lock()
	gap := time.Since(c.lastAudioSend)
	c.lastAudioSend = time.Now()
	c.mu.Unlock()

	if gap > interactionGap {
		if n := c.Audio.Drain(); n > 0 {
			slog.Warn("drained stale inbound audio at interaction boundary", "entries", n)
		}
	}

	return c.Send(&wire.AudioChunk{Payload: wire.AudioPayload{
		Data: data,
		Metadata: wire.AudioMetadata{
			IsFinal:    final,
			Format:     c.cfg.AudioFormat,
			SampleRate: c.cfg.SampleRate,
			Timestamp:  jsontime.NowEpoch(),
		},
	}})
}

// StartStreaming sends the advisory streaming-start control frame.
func (c *Conn) StartStreaming() error {
	return c.Send(&wire.Control{Command: wire.CommandStartStreaming, Timestamp: jsontime.NowEpoch()})
}

// StopStreaming sends the advisory streaming-stop control frame.
func (c *Conn) StopStreaming() error {
	return c.Send(&wire.Control{Command: wire.CommandStopStreaming, Timestamp: jsontime.NowEpoch()})
}

// readLoop dispatches inbound frames until the transport fails or the
// connection is torn down.
func (c *Conn) readLoop(ws *websocket.Conn, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		msgType, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			slog.Warn("gateway read failed", "err", err)
			c.handleTransportError(err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		ws.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout))

		msg, err := wire.Decode(data)
		if err != nil {
			slog.Error("undecodable gateway frame", "err", err)
			continue
		}
		c.dispatch(msg)
	}
}

// dispatch routes one frame. Audio responses are queued for playback in
// addition to handler dispatch, never instead of it.
func (c *Conn) dispatch(msg wire.Message) {
	c.mu.Lock()
	c.lastActivity = time.Now()
	if ack, ok := msg.(*wire.HandshakeAck); ok {
		c.sessionID = ack.SessionID
	}
	h := c.handlers[msg.FrameType()]
	c.mu.Unlock()

	if ar, ok := msg.(*wire.AudioResponse); ok {
		if dropped := c.Audio.Push(InboundAudio{Data: ar.Payload.Data, Metadata: ar.Payload.Metadata}); dropped {
			slog.Warn("inbound audio queue full, dropped oldest entry")
		}
	}

	if h != nil {
		h(msg)
	} else {
		slog.Debug("unhandled frame type", "type", msg.FrameType())
	}
}

// heartbeatLoop sends application pings and transport pings.
func (c *Conn) heartbeatLoop(ws *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.Send(&wire.Ping{Timestamp: jsontime.NowEpoch()}); err != nil {
				return
			}
			c.writeMu.Lock()
			err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleTransportError begins a reconnect cycle unless one is already
// running or the connection was closed deliberately.
func (c *Conn) handleTransportError(cause error) {
	c.mu.Lock()
	if c.state != ConnConnected {
		c.mu.Unlock()
		return
	}
	c.state = ConnReconnecting
	c.mu.Unlock()

	slog.Warn("transport error, reconnecting", "err", cause)
	c.teardownLocked()
	go c.reconnect()
}

// reconnect retries with exponential backoff until success or the attempt
// limit is reached.
func (c *Conn) reconnect() {
	for {
		c.mu.Lock()
		c.reconnects++
		c.totalRecon++
		attempt := c.reconnects
		c.mu.Unlock()

		if attempt > c.cfg.ReconnectAttempts {
			slog.Error("max reconnection attempts reached", "attempts", c.cfg.ReconnectAttempts)
			c.setState(ConnFailed)
			return
		}

		delay := c.cfg.ReconnectDelay * (1 << (attempt - 1))
		if delay > 60*time.Second {
			delay = 60 * time.Second
		}
		slog.Info("reconnecting", "delay", delay, "attempt", attempt, "max", c.cfg.ReconnectAttempts)
		time.Sleep(delay)

		c.setState(ConnDisconnected)
		if err := c.Connect(context.Background()); err != nil {
			slog.Error("reconnect failed", "attempt", attempt, "err", err)
			c.mu.Lock()
			// Connect resets the counter only on success; restore the
			// reconnecting state for the next round.
			c.state = ConnReconnecting
			c.mu.Unlock()
			continue
		}
		return
	}
}

// Close shuts the connection down deliberately, without reconnecting.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == ConnDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = ConnDisconnected
	c.mu.Unlock()

	slog.Info("disconnecting from gateway")
	c.teardownLocked()
	return nil
}

// teardown closes the socket after a failed connect.
func (c *Conn) teardown() {
	c.setState(ConnFailed)
	c.teardownLocked()
}

func (c *Conn) teardownLocked() {
	c.mu.Lock()
	ws := c.ws
	stopRead, stopBeat := c.stopRead, c.stopBeat
	c.ws = nil
	c.stopRead, c.stopBeat = nil, nil
	c.mu.Unlock()

	if stopRead != nil {
		close(stopRead)
	}
	if stopBeat != nil {
		close(stopBeat)
	}
	if ws != nil {
		ws.Close()
	}
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the gateway-assigned session id from the latest
// handshake ack, or empty before the ack arrives.
func (c *Conn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// IsConnected reports whether the transport is up.
func (c *Conn) IsConnected() bool {
	return c.State() == ConnConnected
}

// ConnStats is a point-in-time connection snapshot.
type ConnStats struct {
	State        string        `json:"state"`
	Reconnects   int           `json:"reconnect_count"`
	LastActivity time.Duration `json:"last_activity"`
	QueueLen     int           `json:"queue_size"`
	QueueDropped int64         `json:"queue_dropped"`
	Connected    bool          `json:"connected"`
}

// Stats returns connection statistics.
func (c *Conn) Stats() ConnStats {
	c.mu.Lock()
	state := c.state
	recon := c.totalRecon
	last := c.lastActivity
	c.mu.Unlock()

	var idle time.Duration
	if !last.IsZero() {
		idle = time.Since(last)
	}
	return ConnStats{
		State:        state.String(),
		Reconnects:   recon,
		LastActivity: idle,
		QueueLen:     c.Audio.Len(),
		QueueDropped: c.Audio.Dropped(),
		Connected:    state == ConnConnected,
	}
}
