package wav

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// 16 chunks of 640 bytes: one second-ish utterance at 16 kHz.
	pcm := bytes.Repeat([]byte{0x01, 0x02}, 16*320)

	container := Encode(pcm, 16000)
	if len(container) != 44+len(pcm) {
		t.Fatalf("container size = %d, want %d", len(container), 44+len(pcm))
	}

	info, got, err := Decode(container)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsDepth != 16 {
		t.Errorf("info = %+v", info)
	}
	if !bytes.Equal(got, pcm) {
		t.Error("payload mismatch")
	}
	// Sample count equals raw bytes over two (16-bit mono).
	if info.Samples() != len(pcm)/2 {
		t.Errorf("Samples = %d, want %d", info.Samples(), len(pcm)/2)
	}
}

func TestEncodeEmptyPayload(t *testing.T) {
	container := Encode(nil, 48000)
	info, pcm, err := Decode(container)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if info.SampleRate != 48000 || len(pcm) != 0 {
		t.Errorf("info=%+v len=%d", info, len(pcm))
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := Decode([]byte("definitely not audio")); !errors.Is(err, ErrNotWAV) {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
	if _, _, err := Decode(nil); !errors.Is(err, ErrNotWAV) {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
}

func TestDecodeTruncatedData(t *testing.T) {
	container := Encode(make([]byte, 640), 16000)
	if _, _, err := Decode(container[:60]); err == nil {
		t.Error("truncated container accepted")
	}
}

func TestDecodeSkipsExtraChunks(t *testing.T) {
	container := Encode([]byte{1, 2, 3, 4}, 16000)

	// Splice a LIST chunk between fmt and data.
	extra := append([]byte("LIST"), 0x04, 0, 0, 0, 'I', 'N', 'F', 'O')
	spliced := append([]byte{}, container[:36]...)
	spliced = append(spliced, extra...)
	spliced = append(spliced, container[36:]...)

	info, pcm, err := Decode(spliced)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if info.SampleRate != 16000 || !bytes.Equal(pcm, []byte{1, 2, 3, 4}) {
		t.Errorf("info=%+v pcm=%v", info, pcm)
	}
}
