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
	"github.com/pommai/toygate/pkg/audio/resampler"
	"github.com/pommai/toygate/pkg/buffer"
	"github.com/pommai/toygate/pkg/wire"
)

// PlayerConfig tunes the playback pipeline.
type PlayerConfig struct {
	// MinWriteSize is the aggregation target. Bluetooth-class sinks
	// under-run catastrophically on sub-kilobyte writes, so inbound chunks
	// are held until at least this many bytes are available. Default 8 KiB.
	MinWriteSize int

	// InterWriteDelay spaces successive sink writes so the sink's internal
	// buffer is not overwhelmed. Default 2ms.
	InterWriteDelay time.Duration

	// StarveTimeout ends playback when no audio has arrived for this long
	// and the stream is no longer receiving. Default 1s.
	StarveTimeout time.Duration

	// MaxDuration caps one playback session against a stuck stream.
	// Default 30s.
	MaxDuration time.Duration

	// SinkRate, when non-zero, resamples provider audio to this rate
	// before writing. Bluetooth sinks typically want 48000; HAT-style I2S
	// sinks take the stream's native rate (leave zero).
	SinkRate int
}

func (c PlayerConfig) withDefaults() PlayerConfig {
	if c.MinWriteSize <= 0 {
		c.MinWriteSize = 8192
	}
	if c.InterWriteDelay <= 0 {
		c.InterWriteDelay = 2 * time.Millisecond
	}
	if c.StarveTimeout <= 0 {
		c.StarveTimeout = time.Second
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 30 * time.Second
	}
	return c
}

// PlayerStats counts playback pipeline events.
type PlayerStats struct {
	ChunksPlayed       int64 `json:"chunks_played"`
	BytesPlayed        int64 `json:"bytes_played"`
	Underruns          int64 `json:"underruns"`
	PlaybackStarts     int64 `json:"playback_starts"`
	ConcurrentAttempts int64 `json:"concurrent_attempts"`
	SkippedFrames      int64 `json:"skipped_frames"`
}

// Player consumes the inbound audio queue and writes aggregated blocks to
// the output sink. At most one playback session runs at a time; concurrent
// triggers are rejected.
type Player struct {
	cfg   PlayerConfig
	queue *buffer.Queue[InboundAudio]
	sink  io.Writer
	dec   FrameDecoder

	running   atomic.Bool
	receiving atomic.Bool

	mu    sync.Mutex
	stats PlayerStats
}

// NewPlayer creates a Player draining queue into sink. dec decodes opus
// payloads; pass nil when only PCM16 is expected.
func NewPlayer(queue *buffer.Queue[InboundAudio], sink io.Writer, dec FrameDecoder, cfg PlayerConfig) *Player {
	return &Player{
		cfg:   cfg.withDefaults(),
		queue: queue,
		sink:  sink,
		dec:   dec,
	}
}

// Running reports whether a playback session is active.
func (p *Player) Running() bool { return p.running.Load() }

// SetReceiving marks whether more inbound audio is expected. While true,
// starvation pauses playback instead of ending it.
func (p *Player) SetReceiving(v bool) { p.receiving.Store(v) }

// Stats returns a snapshot of playback counters.
func (p *Player) Stats() PlayerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Play runs one playback session to completion. A second call while a
// session is active is counted and rejected; the first playback keeps the
// speaker.
func (p *Player) Play(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		p.mu.Lock()
		p.stats.ConcurrentAttempts++
		p.mu.Unlock()
		slog.Warn("playback already in progress, rejecting concurrent trigger")
		return nil
	}
	defer p.running.Store(false)

	p.mu.Lock()
	p.stats.PlaybackStarts++
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.MaxDuration)
	defer cancel()

	slog.Info("playback started")
	err := p.run(ctx, p.sink)
	if err != nil {
		slog.Error("playback ended with error", "err", err)
		return err
	}
	slog.Info("playback complete", "chunks", p.Stats().ChunksPlayed)
	return nil
}

// run is the aggregation write loop. The resampling wrapper is created
// lazily at the first audio chunk because the source rate arrives in frame
// metadata.
func (p *Player) run(ctx context.Context, sink io.Writer) error {
	var agg []byte
	srcRate := 0
	out := sink
	var closeOut func() error = func() error { return nil }
	defer func() { closeOut() }()

	for {
		popCtx, cancel := context.WithTimeout(ctx, p.cfg.StarveTimeout)
		item, err := p.queue.Pop(popCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				// Session cap or caller cancellation: flush and stop.
				p.flush(out, agg)
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				// Starved. Keep waiting while the stream is still
				// receiving; otherwise drain what is left and finish.
				if p.receiving.Load() {
					continue
				}
				p.flush(out, agg)
				return nil
			}
			// Queue closed.
			p.flush(out, agg)
			return nil
		}

		pcmBytes, ok := p.decodePayload(item)
		if !ok {
			continue
		}

		if len(pcmBytes) > 0 {
			if srcRate == 0 && item.Metadata.SampleRate > 0 {
				srcRate = item.Metadata.SampleRate
				if w, c, err := p.resampleWriter(sink, srcRate); err == nil {
					out, closeOut = w, c
				} else {
					slog.Warn("resampler unavailable, writing at source rate", "err", err)
				}
			}
			agg = append(agg, pcmBytes...)
		}

		for len(agg) >= p.cfg.MinWriteSize {
			if err := p.writeBlock(out, agg[:p.cfg.MinWriteSize]); err != nil {
				// Underrun: reset the aggregation buffer and keep going.
				agg = agg[:0]
				break
			}
			agg = agg[p.cfg.MinWriteSize:]
			select {
			case <-ctx.Done():
				p.flush(out, agg)
				return ctx.Err()
			case <-time.After(p.cfg.InterWriteDelay):
			}
		}

		if item.Metadata.IsFinal {
			p.flush(out, agg)
			return nil
		}
	}
}

// decodePayload turns one queued frame into PCM16 bytes. Terminal markers
// return empty bytes with ok=true so the caller sees IsFinal.
func (p *Player) decodePayload(item InboundAudio) ([]byte, bool) {
	if len(item.Data) == 0 {
		return nil, true
	}
	switch item.Metadata.Format {
	case wire.FormatPCM16, "":
		return item.Data, true
	case wire.FormatOpus:
		if p.dec == nil {
			slog.Warn("opus frame with no decoder configured, skipping")
			p.countSkip()
			return nil, false
		}
		out, err := p.dec.Decode(item.Data)
		if err != nil {
			slog.Error("decode inbound opus frame", "err", err)
			p.countSkip()
			return nil, false
		}
		return out, true
	default:
		slog.Warn("unsupported inbound audio format, skipping", "format", item.Metadata.Format)
		p.countSkip()
		return nil, false
	}
}

// flush pads the residue with silence up to the minimum write size and
// writes it. Padding smooths stream-end on jittery sinks.
func (p *Player) flush(out io.Writer, agg []byte) {
	if len(agg) == 0 {
		return
	}
	if pad := p.cfg.MinWriteSize - len(agg); pad > 0 {
		agg = append(agg, make([]byte, pad)...)
	}
	if err := p.writeBlock(out, agg); err != nil {
		slog.Warn("final playback write failed", "err", err)
	}
}

// writeBlock writes one aggregated block, counting underruns on failure.
func (p *Player) writeBlock(out io.Writer, block []byte) error {
	if _, err := out.Write(block); err != nil {
		p.mu.Lock()
		p.stats.Underruns++
		p.mu.Unlock()
		slog.Warn("playback write failed", "err", err, "bytes", len(block))
		return err
	}
	p.mu.Lock()
	p.stats.ChunksPlayed++
	p.stats.BytesPlayed += int64(len(block))
	p.mu.Unlock()
	return nil
}

func (p *Player) countSkip() {
	p.mu.Lock()
	p.stats.SkippedFrames++
	p.mu.Unlock()
}

// resampleWriter pipes PCM16 writes through the stream resampler so a sink
// opened at a fixed rate (48 kHz Bluetooth) can play provider-rate audio.
func (p *Player) resampleWriter(sink io.Writer, srcRate int) (io.Writer, func() error, error) {
	if p.cfg.SinkRate == 0 || p.cfg.SinkRate == srcRate {
		return sink, func() error { return nil }, nil
	}

	pr, pw := io.Pipe()
	rs, err := resampler.New(pr, pcm.Mono(srcRate), pcm.Mono(p.cfg.SinkRate))
	if err != nil {
		pw.Close()
		return nil, nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := io.Copy(sink, rs); err != nil {
			slog.Warn("resampled playback copy ended", "err", err)
		}
	}()

	closeFn := func() error {
		pw.Close()
		<-done
		return rs.Close()
	}
	return pw, closeFn, nil
}
