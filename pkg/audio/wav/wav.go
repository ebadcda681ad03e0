// Package wav wraps raw PCM16 in a canonical RIFF/WAV container.
//
// The gateway containerizes buffered device audio before handing it to the
// speech recognizer so the recognizer never needs out-of-band sample-rate
// knowledge. Only the 16-bit little-endian integer PCM profile is
// supported; that is the only thing devices send.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// headerSize is the canonical 44-byte RIFF header for a single data chunk.
const headerSize = 44

// ErrNotWAV reports data that does not start with a RIFF/WAVE header.
var ErrNotWAV = errors.New("wav: not a RIFF/WAVE stream")

// Info describes a parsed WAV container.
type Info struct {
	SampleRate int
	Channels   int
	BitsDepth  int
	DataLen    int // length of the PCM payload in bytes
}

// Samples returns the number of samples in the data payload.
func (i Info) Samples() int {
	bytesPerSample := i.Channels * i.BitsDepth / 8
	if bytesPerSample == 0 {
		return 0
	}
	return i.DataLen / bytesPerSample
}

// Encode wraps pcm bytes in a mono 16-bit little-endian WAV container at
// the given sample rate.
func Encode(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	out := make([]byte, headerSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // audio format: integer PCM
	binary.LittleEndian.PutUint16(out[22:24], channels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[headerSize:], pcm)
	return out
}

// Decode parses a WAV container and returns its format info and PCM payload.
// Extra chunks between "fmt " and "data" are skipped.
func Decode(data []byte) (Info, []byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Info{}, nil, ErrNotWAV
	}

	var info Info
	var pcm []byte
	sawFmt := false

	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return Info{}, nil, fmt.Errorf("wav: chunk %q overruns data (%d bytes past end)", id, body+size-len(data))
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Info{}, nil, fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
			}
			if format := binary.LittleEndian.Uint16(data[body : body+2]); format != 1 {
				return Info{}, nil, fmt.Errorf("wav: unsupported audio format %d (want integer PCM)", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsDepth = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			sawFmt = true
		case "data":
			info.DataLen = size
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if !sawFmt {
		return Info{}, nil, errors.New("wav: missing fmt chunk")
	}
	if pcm == nil {
		return Info{}, nil, errors.New("wav: missing data chunk")
	}
	return info, pcm, nil
}
