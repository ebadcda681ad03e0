// Package gateway implements the relay between toy devices and the AI
// backend.
//
// Devices connect over WebSocket at /ws/{device_id}/{toy_id} and stream
// utterance audio up; the gateway buffers each utterance, hands the complete
// recording to the backend pipeline, and streams the reply text and
// synthesized audio back down. The relay holds no conversation state of its
// own beyond live sessions.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pommai/toygate/pkg/convex"
	"github.com/pommai/toygate/pkg/jsontime"
	"github.com/pommai/toygate/pkg/observe"
	"github.com/pommai/toygate/pkg/tts"
	"github.com/pommai/toygate/pkg/wire"
)

// Config tunes the relay's timing and behavior.
type Config struct {
	// KeepAlive is the transport ping interval. Long AI calls must not
	// look like dead connections.
	KeepAlive time.Duration

	// IdleTimeout is how long a session may stay silent before the
	// reaper closes it.
	IdleTimeout time.Duration

	// ReapInterval is how often the reaper scans for idle sessions.
	ReapInterval time.Duration

	// StatusInterval is how often a processing status frame is sent
	// while an AI call is outstanding.
	StatusInterval time.Duration

	// SkipTTS disables synthesis entirely. Used in test deployments.
	SkipTTS bool
}

// DefaultConfig returns the production timing defaults.
func DefaultConfig() Config {
	return Config{
		KeepAlive:      45 * time.Second,
		IdleTimeout:    300 * time.Second,
		ReapInterval:   60 * time.Second,
		StatusInterval: 10 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.KeepAlive <= 0 {
		c.KeepAlive = def.KeepAlive
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = def.ReapInterval
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = def.StatusInterval
	}
	return c
}

// Gateway is the relay server.
type Gateway struct {
	cfg      Config
	backend  *convex.Client
	streamer *tts.Streamer
	registry *tts.Registry
	metrics  *observe.Metrics
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session

	wg sync.WaitGroup
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTTS enables direct synthesis streaming from the given registry. When
// absent, the backend pipeline renders audio instead.
func WithTTS(registry *tts.Registry) Option {
	return func(g *Gateway) {
		g.registry = registry
		g.streamer = tts.NewStreamer(registry)
	}
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// New creates a Gateway relaying through the given backend client.
func New(backend *convex.Client, cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:      cfg.withDefaults(),
		backend:  backend,
		sessions: make(map[string]*Session),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
			// Compression is off for latency; audio hex does not
			// compress well anyway.
			EnableCompression: false,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}

	if g.streamer != nil {
		slog.Info("TTS streaming enabled", "providers", g.registry.Names())
	} else {
		slog.Warn("no TTS providers configured, backend will render audio")
	}

	return g
}

// Handler returns the HTTP handler exposing /health, /metrics, and the
// device WebSocket endpoint.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	mux.HandleFunc("GET /ws/{device_id}/{toy_id}", g.handleWS)
	return mux
}

// Run starts the idle-session reaper and blocks until ctx is canceled, then
// closes all sessions and waits for in-flight work.
func (g *Gateway) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.closeAll()
			g.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			g.reapIdle()
		}
	}
}

// SessionCount returns the number of live sessions.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *Gateway) addSession(s *Session) {
	g.mu.Lock()
	g.sessions[s.ID] = s
	g.mu.Unlock()
}

func (g *Gateway) removeSession(s *Session) {
	g.mu.Lock()
	delete(g.sessions, s.ID)
	g.mu.Unlock()
}

// reapIdle closes sessions that have been silent longer than IdleTimeout.
func (g *Gateway) reapIdle() {
	cutoff := time.Now().Add(-g.cfg.IdleTimeout)

	g.mu.Lock()
	var idle []*Session
	for _, s := range g.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	g.mu.Unlock()

	for _, s := range idle {
		slog.Info("cleaning up inactive session", "session", s.ID)
		s.conn.Close()
	}
}

// closeAll tears down every session during shutdown.
func (g *Gateway) closeAll() {
	g.mu.Lock()
	all := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		all = append(all, s)
	}
	g.mu.Unlock()

	for _, s := range all {
		s.conn.Close()
	}
}

// healthResponse is the /health body.
type healthResponse struct {
	Status       string         `json:"status"`
	Type         string         `json:"type"`
	Sessions     int            `json:"sessions"`
	ConvexURL    string         `json:"convex_url"`
	TTSStreaming string         `json:"tts_streaming"`
	TTSProviders []string       `json:"tts_providers"`
	Timestamp    jsontime.Milli `json:"timestamp"`
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:       "healthy",
		Type:         "relay",
		Sessions:     g.SessionCount(),
		ConvexURL:    g.backend.BaseURL(),
		TTSStreaming: "disabled",
		TTSProviders: []string{},
		Timestamp:    jsontime.Milli(time.Now()),
	}
	if g.streamer != nil {
		resp.TTSStreaming = "enabled"
		resp.TTSProviders = g.registry.Names()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("write health response", "err", err)
	}
}

// sendError sends an error frame, logging on write failure.
func (g *Gateway) sendError(s *Session, code, message string) {
	if err := s.send(&wire.Error{Code: code, Message: message}); err != nil {
		slog.Error("send error frame", "session", s.ID, "code", code, "err", err)
	}
}
