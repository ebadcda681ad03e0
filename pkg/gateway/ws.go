package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pommai/toygate/pkg/jsontime"
	"github.com/pommai/toygate/pkg/wire"
)

// handleWS accepts a device connection and runs its read loop until the
// device disconnects or the reaper closes the socket.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	toyID := r.PathValue("toy_id")

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "device", deviceID, "err", err)
		return
	}

	s := newSession(deviceID, toyID, conn)
	g.addSession(s)

	ctx := r.Context()
	g.metrics.Sessions.Add(ctx, 1)
	g.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("client connected", "device", deviceID, "toy", toyID, "session", s.ID)

	// Transport keepalive. The read deadline is refreshed on pongs and on
	// every frame so a session stays up through long AI calls.
	stopPing := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(2 * g.cfg.KeepAlive))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * g.cfg.KeepAlive))
	})
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(g.cfg.KeepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				s.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
				s.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	defer func() {
		close(stopPing)
		s.markClosed()
		if n := s.bufferedAudio(); n > 0 {
			slog.Warn("client disconnected with buffered audio and no final marker",
				"session", s.ID, "buffered", n)
		}
		g.metrics.ActiveSessions.Add(ctx, -1)
		g.removeSession(s)
		conn.Close()
		slog.Info("client disconnected", "session", s.ID)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				slog.Debug("read loop ended", "session", s.ID, "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		conn.SetReadDeadline(time.Now().Add(2 * g.cfg.KeepAlive))
		g.handleFrame(s, data)
		s.touch()
	}
}

// handleFrame dispatches one frame from the device.
func (g *Gateway) handleFrame(s *Session, data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		var decodeErr wire.DecodeError
		if errors.As(err, &decodeErr) {
			slog.Warn("undecodable frame", "session", s.ID, "err", err)
			g.sendError(s, decodeErr.Code(), "")
			return
		}
		slog.Error("frame decode", "session", s.ID, "err", err)
		g.sendError(s, err.Error(), "")
		return
	}

	ctx := context.Background()
	g.metrics.RecordMessage(ctx, string(msg.FrameType()))
	slog.Debug("received message", "type", msg.FrameType(), "device", s.DeviceID)

	switch m := msg.(type) {
	case *wire.Handshake:
		err := s.send(&wire.HandshakeAck{
			Status:    "connected",
			SessionID: s.ID,
			Timestamp: jsontime.NowEpoch(),
		})
		if err != nil {
			slog.Error("send handshake ack", "session", s.ID, "err", err)
			return
		}
		slog.Info("handshake completed", "device", s.DeviceID)

	case *wire.Ping:
		if err := s.send(&wire.Pong{Timestamp: jsontime.NowEpoch()}); err != nil {
			slog.Error("send pong", "session", s.ID, "err", err)
		}

	case *wire.Control:
		// Streaming commands are advisory; the audio path is driven by
		// chunk metadata alone.
		if err := s.send(&wire.ControlAck{Command: m.Command, OK: true}); err != nil {
			slog.Error("send control ack", "session", s.ID, "err", err)
		}

	case *wire.AudioChunk:
		g.handleAudioChunk(s, &m.Payload)

	default:
		slog.Warn("unexpected message type", "session", s.ID, "type", msg.FrameType())
		g.sendError(s, "unknown_message_type: "+string(msg.FrameType()), "")
	}
}
