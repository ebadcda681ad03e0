// Package pcm provides format math for 16-bit linear PCM audio.
//
// The wire protocol moves mono little-endian PCM16 at varying sample rates
// (16 kHz capture, provider-native synthesis rates, 48 kHz Bluetooth
// playback). Format carries the rate/channel pair and answers the
// duration-to-byte questions the pipelines ask constantly: how many bytes
// is 20 ms, how much silence pads a final write, what level is this frame.
package pcm

import (
	"math"
	"time"
)

// Format describes a 16-bit linear PCM stream.
type Format struct {
	// Rate is the sample rate in Hz.
	Rate int

	// Channels is the channel count (1 for all toy audio paths).
	Channels int
}

// Common formats.
var (
	// L16Mono16K is the device capture format (20 ms = 640 bytes).
	L16Mono16K = Format{Rate: 16000, Channels: 1}

	// L16Mono22K is the backend relay default for pre-rendered audio.
	L16Mono22K = Format{Rate: 22050, Channels: 1}

	// L16Mono24K is a common provider-native synthesis rate.
	L16Mono24K = Format{Rate: 24000, Channels: 1}

	// L16Mono48K is the Bluetooth sink playback format.
	L16Mono48K = Format{Rate: 48000, Channels: 1}
)

// Mono returns a mono format at the given sample rate.
func Mono(rate int) Format {
	return Format{Rate: rate, Channels: 1}
}

// Valid reports whether the format has a usable rate and channel count.
func (f Format) Valid() bool {
	return f.Rate > 0 && f.Channels > 0
}

// SampleBytes returns the byte size of one sample across all channels.
func (f Format) SampleBytes() int {
	return 2 * f.Channels
}

// BytesRate returns the byte rate of the stream.
func (f Format) BytesRate() int {
	return f.Rate * f.SampleBytes()
}

// Samples returns the number of samples in the given number of bytes.
func (f Format) Samples(bytes int) int {
	return bytes / f.SampleBytes()
}

// SamplesInDuration returns the number of samples in the given duration.
func (f Format) SamplesInDuration(d time.Duration) int {
	return int(time.Duration(f.Rate) * d / time.Second)
}

// BytesInDuration returns the number of bytes in the given duration.
func (f Format) BytesInDuration(d time.Duration) int {
	return f.SamplesInDuration(d) * f.SampleBytes()
}

// Duration returns the play time of the given number of bytes.
func (f Format) Duration(bytes int) time.Duration {
	if f.Rate == 0 {
		return 0
	}
	return time.Duration(f.Samples(bytes)) * time.Second / time.Duration(f.Rate)
}

// Silence returns n bytes of PCM16 silence, aligned down to a whole sample.
func (f Format) Silence(n int) []byte {
	if n < 0 {
		n = 0
	}
	return make([]byte, n/f.SampleBytes()*f.SampleBytes())
}

// SilenceInDuration returns silence bytes covering the given duration.
func (f Format) SilenceInDuration(d time.Duration) []byte {
	return make([]byte, f.BytesInDuration(d))
}

// RMS returns the root-mean-square level of a little-endian PCM16 frame.
// Used for silence detection on the capture path.
func RMS(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}
