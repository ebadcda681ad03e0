package device

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/hraban/opus.v2"

	"github.com/pommai/toygate/pkg/wire"
)

// FrameEncoder compresses one capture frame for the wire.
type FrameEncoder interface {
	// Encode returns the wire bytes for one fixed-size PCM16 frame.
	Encode(pcm []byte) ([]byte, error)

	// Format returns the wire format tag for encoded frames.
	Format() string
}

// FrameDecoder expands one wire payload back to PCM16.
type FrameDecoder interface {
	Decode(data []byte) ([]byte, error)
}

// PCMCodec passes PCM16 frames through unchanged.
type PCMCodec struct{}

func (PCMCodec) Encode(pcm []byte) ([]byte, error)  { return pcm, nil }
func (PCMCodec) Decode(data []byte) ([]byte, error) { return data, nil }
func (PCMCodec) Format() string                     { return wire.FormatPCM16 }

// OpusCodec encodes and decodes mono Opus frames. Not safe for concurrent
// use; capture and playback each own their own codec instance.
type OpusCodec struct {
	enc        *opus.Encoder
	dec        *opus.Decoder
	sampleRate int
	frameSize  int // samples per frame
	buf        []byte
	pcm        []int16
}

// OpusConfig tunes the encoder.
type OpusConfig struct {
	SampleRate int // default 16000
	Bitrate    int // default 24000
	Complexity int // default 5
	FrameMS    int // default 20
}

func (c OpusConfig) withDefaults() OpusConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Bitrate <= 0 {
		c.Bitrate = 24000
	}
	if c.Complexity <= 0 {
		c.Complexity = 5
	}
	if c.FrameMS <= 0 {
		c.FrameMS = 20
	}
	return c
}

// NewOpusCodec creates a voice-tuned mono Opus codec.
func NewOpusCodec(cfg OpusConfig) (*OpusCodec, error) {
	cfg = cfg.withDefaults()

	enc, err := opus.NewEncoder(cfg.SampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(cfg.Bitrate); err != nil {
		return nil, fmt.Errorf("set opus bitrate: %w", err)
	}
	if err := enc.SetComplexity(cfg.Complexity); err != nil {
		return nil, fmt.Errorf("set opus complexity: %w", err)
	}

	dec, err := opus.NewDecoder(cfg.SampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}

	frameSize := cfg.SampleRate * cfg.FrameMS / 1000
	return &OpusCodec{
		enc:        enc,
		dec:        dec,
		sampleRate: cfg.SampleRate,
		frameSize:  frameSize,
		buf:        make([]byte, 4000),
		pcm:        make([]int16, frameSize),
	}, nil
}

// Format implements FrameEncoder.
func (c *OpusCodec) Format() string { return wire.FormatOpus }

// FrameBytes returns the PCM16 byte size of one codec frame.
func (c *OpusCodec) FrameBytes() int { return c.frameSize * 2 }

// Encode compresses exactly one PCM16 frame.
func (c *OpusCodec) Encode(pcm []byte) ([]byte, error) {
	if len(pcm) != c.frameSize*2 {
		return nil, fmt.Errorf("opus encode: frame is %d bytes, want %d", len(pcm), c.frameSize*2)
	}
	for i := range c.pcm {
		c.pcm[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	n, err := c.enc.Encode(c.pcm, c.buf)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	out := make([]byte, n)
	copy(out, c.buf[:n])
	return out, nil
}

// Decode expands one Opus packet to PCM16.
func (c *OpusCodec) Decode(data []byte) ([]byte, error) {
	// A packet may carry up to 120ms of audio.
	pcm := make([]int16, c.sampleRate*120/1000)
	n, err := c.dec.Decode(data, pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(pcm[i]))
	}
	return out, nil
}
