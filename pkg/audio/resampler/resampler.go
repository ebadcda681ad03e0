// Package resampler converts 16-bit mono PCM between sample rates.
//
// The device playback path feeds provider-native audio (16 or 24 kHz) to
// sinks that may only open at 48 kHz (Bluetooth). Conversion is pure Go via
// github.com/tphakala/go-audio-resampling, so the device daemon needs no
// native resampling library.
package resampler

import (
	"fmt"
	"io"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/pommai/toygate/pkg/audio/pcm"
)

// Resampler converts a PCM16 mono stream from one sample rate to another.
// It implements io.ReadCloser; Close releases the converter state.
type Resampler interface {
	io.ReadCloser
	CloseWithError(error) error
}

// stream wraps an io.Reader and resamples on the fly.
type stream struct {
	src    *sampleReader
	srcFmt pcm.Format
	dstFmt pcm.Format

	mu        sync.Mutex
	conv      resampling.Resampler
	readBuf   []byte
	leftover  []byte
	closeErr  error
	passthrou bool
}

// New creates a Resampler reading PCM16 mono at srcFmt.Rate from src and
// producing PCM16 mono at dstFmt.Rate. Equal rates pass data through
// unchanged.
func New(src io.Reader, srcFmt, dstFmt pcm.Format) (Resampler, error) {
	if srcFmt.Channels != 1 || dstFmt.Channels != 1 {
		return nil, fmt.Errorf("resampler: only mono supported (src=%d dst=%d channels)", srcFmt.Channels, dstFmt.Channels)
	}

	s := &stream{
		src:       newSampleReader(src, srcFmt.SampleBytes()),
		srcFmt:    srcFmt,
		dstFmt:    dstFmt,
		passthrou: srcFmt.Rate == dstFmt.Rate,
	}
	if !s.passthrou {
		conv, err := resampling.New(&resampling.Config{
			InputRate:  float64(srcFmt.Rate),
			OutputRate: float64(dstFmt.Rate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: %w", err)
		}
		s.conv = conv
	}
	return s, nil
}

// Read copies resampled audio into p. Not safe for concurrent use.
func (s *stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) < 2 {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/2*2]

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.leftover) > 0 {
		n := copy(p, s.leftover)
		s.leftover = s.leftover[n:]
		return n, nil
	}
	if s.closeErr != nil {
		return 0, s.closeErr
	}
	if s.passthrou {
		return s.src.Read(p)
	}
	return s.readAndConvert(p)
}

func (s *stream) readAndConvert(p []byte) (int, error) {
	// Estimate the source bytes needed for len(p) output bytes.
	ratio := float64(s.srcFmt.Rate) / float64(s.dstFmt.Rate)
	need := int(float64(len(p))*ratio) + 8
	need = need / 2 * 2
	if cap(s.readBuf) < need {
		s.readBuf = make([]byte, need)
	}

	rn, readErr := s.src.Read(s.readBuf[:need])
	if rn == 0 {
		if readErr != nil {
			return 0, readErr
		}
		return 0, io.EOF
	}

	out, err := s.conv.Process(int16ToFloat(s.readBuf[:rn]))
	if err != nil {
		return 0, fmt.Errorf("resampler: process: %w", err)
	}
	outBytes := floatToInt16(out)

	n := copy(p, outBytes)
	if len(outBytes) > n {
		s.leftover = append(s.leftover, outBytes[n:]...)
	}
	return n, readErr
}

// Close releases resources. Subsequent reads return io.ErrClosedPipe.
func (s *stream) Close() error {
	return s.CloseWithError(fmt.Errorf("resampler: %w", io.ErrClosedPipe))
}

// CloseWithError releases resources with a custom error returned by
// subsequent reads.
func (s *stream) CloseWithError(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr == nil {
		s.closeErr = err
	}
	s.conv = nil
	return nil
}

// int16ToFloat converts little-endian PCM16 bytes to normalized float64
// samples.
func int16ToFloat(b []byte) []float64 {
	n := len(b) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
		out[i] = float64(s) / 32768.0
	}
	return out
}

// floatToInt16 converts normalized float64 samples back to little-endian
// PCM16 bytes, clamping out-of-range values.
func floatToInt16(in []float64) []byte {
	out := make([]byte, len(in)*2)
	for i, v := range in {
		var s int16
		switch {
		case v >= 1.0:
			s = 32767
		case v <= -1.0:
			s = -32768
		default:
			s = int16(v * 32767.0)
		}
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}
