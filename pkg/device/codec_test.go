package device

import (
	"encoding/binary"
	"math"
	"testing"
)

func sineFrame(samples int) []byte {
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func TestOpusCodecRoundTrip(t *testing.T) {
	codec, err := NewOpusCodec(OpusConfig{})
	if err != nil {
		t.Fatalf("create codec: %v", err)
	}
	if codec.FrameBytes() != 640 {
		t.Fatalf("frame bytes = %d, want 640 (20ms at 16kHz)", codec.FrameBytes())
	}

	frame := sineFrame(320)
	packet, err := codec.Encode(frame)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(packet) == 0 || len(packet) >= len(frame) {
		t.Errorf("packet = %d bytes for a %d byte frame", len(packet), len(frame))
	}

	pcm, err := codec.Decode(packet)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pcm) != len(frame) {
		t.Errorf("decoded %d bytes, want %d", len(pcm), len(frame))
	}
}

func TestOpusCodecRejectsWrongFrameSize(t *testing.T) {
	codec, err := NewOpusCodec(OpusConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := codec.Encode(make([]byte, 100)); err == nil {
		t.Fatal("expected error for partial frame")
	}
}
