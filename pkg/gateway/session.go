package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pommai/toygate/pkg/wire"
)

// Session is one connected device.
type Session struct {
	// ID is the gateway-assigned session identifier.
	ID string

	// DeviceID is the physical device, from the connect URL.
	DeviceID string

	// ToyID is the toy personality, from the connect URL.
	ToyID string

	conn *websocket.Conn

	// ctx is canceled when the session closes so in-flight backend calls
	// stop instead of waiting out their own timeout.
	ctx    context.Context
	cancel context.CancelFunc

	// writeMu serializes frame writes; the websocket allows one concurrent
	// writer and frames come from both the read loop and background AI
	// dispatch.
	writeMu sync.Mutex

	mu           sync.Mutex
	audioBuffer  []byte
	lastActivity time.Time
	closed       bool
}

// newSessionID builds the session identifier from the device and the
// connect time with fractional seconds.
func newSessionID(deviceID string, now time.Time) string {
	ts := strconv.FormatFloat(float64(now.UnixMicro())/1e6, 'f', 6, 64)
	return fmt.Sprintf("%s-%s", deviceID, ts)
}

func newSession(deviceID, toyID string, conn *websocket.Conn) *Session {
	now := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:           newSessionID(deviceID, now),
		DeviceID:     deviceID,
		ToyID:        toyID,
		conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		lastActivity: now,
	}
}

// send encodes and writes one frame. Safe for concurrent use.
func (s *Session) send(m wire.Message) error {
	data, err := wire.Encode(m)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", m.FrameType(), err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// touch records activity for the idle reaper.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// idleSince returns the last activity time.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// appendAudio buffers utterance bytes and returns the buffered total.
func (s *Session) appendAudio(data []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioBuffer = append(s.audioBuffer, data...)
	return len(s.audioBuffer)
}

// takeAudio returns the buffered utterance and resets the buffer.
func (s *Session) takeAudio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.audioBuffer
	s.audioBuffer = nil
	return buf
}

// bufferedAudio returns the current buffer size.
func (s *Session) bufferedAudio() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audioBuffer)
}

// markClosed flags the session so background senders stop and cancels its
// context. Returns false if it was already closed.
func (s *Session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.cancel()
	return true
}

// isClosed reports whether the session has been torn down.
func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
