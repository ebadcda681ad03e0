package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pommai/toygate/pkg/audio/pcm"
)

// Silence detection cutoffs for auto-stop.
const (
	silenceRMSThreshold = 500
	maxSilence          = 2 * time.Second
)

// RecorderConfig configures the capture pipeline.
type RecorderConfig struct {
	// Format of the microphone stream. Default mono 16 kHz.
	Format pcm.Format

	// FrameBytes is the fixed read size per microphone frame. Default is
	// 20 ms at the configured rate (640 bytes at 16 kHz).
	FrameBytes int
}

func (c RecorderConfig) withDefaults() RecorderConfig {
	if !c.Format.Valid() {
		c.Format = pcm.Mono(16000)
	}
	if c.FrameBytes <= 0 {
		c.FrameBytes = c.Format.BytesInDuration(20 * time.Millisecond)
	}
	return c
}

// Recorder reads fixed-size frames from the microphone, encodes them, and
// streams them to the gateway. One utterance per Start/Stop cycle.
type Recorder struct {
	cfg  RecorderConfig
	mic  io.Reader
	enc  FrameEncoder
	conn *Conn

	// OnSilence fires once per utterance when the input has been below the
	// RMS threshold for maxSilence. Used for auto-stop.
	OnSilence func()

	recording atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	mu        sync.Mutex

	framesSent atomic.Int64
}

// NewRecorder creates a Recorder streaming mic frames through enc to conn.
func NewRecorder(mic io.Reader, enc FrameEncoder, conn *Conn, cfg RecorderConfig) *Recorder {
	return &Recorder{
		cfg:  cfg.withDefaults(),
		mic:  mic,
		enc:  enc,
		conn: conn,
	}
}

// Start begins streaming. It clears any previous utterance state and runs
// the read loop until Stop, mic EOF, or silence auto-stop.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording.CompareAndSwap(false, true) {
		slog.Warn("already recording")
		return nil
	}

	if err := r.conn.StartStreaming(); err != nil {
		r.recording.Store(false)
		return err
	}

	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.recordLoop(ctx, r.stop, r.done)

	slog.Info("started audio recording", "frame_bytes", r.cfg.FrameBytes)
	return nil
}

// Stop ends the utterance: the read loop is stopped, the terminal marker is
// sent, and streaming mode is closed.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording.CompareAndSwap(true, false) {
		return nil
	}

	close(r.stop)
	<-r.done

	// Terminal marker so the gateway dispatches the buffered utterance.
	if err := r.conn.SendAudioChunk(nil, true); err != nil {
		slog.Error("send terminal audio marker", "err", err)
		return err
	}
	if err := r.conn.StopStreaming(); err != nil {
		slog.Error("send stop streaming", "err", err)
	}
	slog.Info("stopped recording", "frames", r.framesSent.Load())
	return nil
}

// Recording reports whether an utterance is in progress.
func (r *Recorder) Recording() bool {
	return r.recording.Load()
}

// FramesSent returns the number of frames streamed over the lifetime of the
// recorder.
func (r *Recorder) FramesSent() int64 {
	return r.framesSent.Load()
}

func (r *Recorder) recordLoop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	frame := make([]byte, r.cfg.FrameBytes)
	var silence time.Duration
	silenceFired := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		if _, err := io.ReadFull(r.mic, frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Debug("microphone stream ended")
				return
			}
			slog.Error("microphone read failed", "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if pcm.RMS(frame) < silenceRMSThreshold {
			silence += r.cfg.Format.Duration(len(frame))
			if silence >= maxSilence && !silenceFired && r.OnSilence != nil {
				silenceFired = true
				go r.OnSilence()
			}
		} else {
			silence = 0
		}

		encoded, err := r.enc.Encode(frame)
		if err != nil {
			slog.Error("encode capture frame", "err", err)
			continue
		}
		if err := r.conn.SendAudioChunk(encoded, false); err != nil {
			slog.Error("send capture frame", "err", err)
			return
		}
		r.framesSent.Add(1)
	}
}
