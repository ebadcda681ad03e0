package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/pommai/toygate/pkg/wire"
)

// loudReader yields a paced PCM16 tone well above the silence threshold.
// The pacing keeps the capture loop near real-time frame rates.
type loudReader struct{}

func (loudReader) Read(p []byte) (int, error) {
	time.Sleep(2 * time.Millisecond)
	for i := 0; i+1 < len(p); i += 2 {
		binary.LittleEndian.PutUint16(p[i:], uint16(int16(8000)))
	}
	return len(p) / 2 * 2, nil
}

// silentReader yields endless zero samples.
type silentReader struct{}

func (silentReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestRecorderStreamsFrames(t *testing.T) {
	g := newTestGateway(t)
	c := NewConn(testConnConfig(g.url()))
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	g.next(5 * time.Second) // handshake

	r := NewRecorder(loudReader{}, PCMCodec{}, c, RecorderConfig{})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	start, ok := g.next(5 * time.Second).(*wire.Control)
	if !ok || start.Command != wire.CommandStartStreaming {
		t.Fatalf("expected start_streaming, got %+v", start)
	}

	chunk, ok := g.next(5 * time.Second).(*wire.AudioChunk)
	if !ok {
		t.Fatal("expected audio_chunk")
	}
	if len(chunk.Payload.Data) != 640 {
		t.Errorf("frame = %d bytes, want 640 (20ms at 16kHz)", len(chunk.Payload.Data))
	}
	if chunk.Payload.Metadata.IsFinal {
		t.Error("streamed frame marked final")
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Drain streamed frames until the terminal marker, which must precede
	// the stop_streaming control.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("no terminal marker before deadline")
		}
		msg := g.next(5 * time.Second)
		ac, ok := msg.(*wire.AudioChunk)
		if !ok {
			t.Fatalf("got %T before terminal marker", msg)
		}
		if ac.Payload.IsTerminal() {
			break
		}
	}
	stop, ok := g.next(5 * time.Second).(*wire.Control)
	if !ok || stop.Command != wire.CommandStopStreaming {
		t.Fatalf("expected stop_streaming after terminal marker, got %+v", stop)
	}

	if r.FramesSent() == 0 {
		t.Error("no frames counted")
	}
}

func TestRecorderSilenceAutoStop(t *testing.T) {
	g := newTestGateway(t)
	c := NewConn(testConnConfig(g.url()))
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	g.next(5 * time.Second) // handshake

	r := NewRecorder(silentReader{}, PCMCodec{}, c, RecorderConfig{})
	fired := make(chan struct{}, 1)
	r.OnSilence = func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	// Silent input is read much faster than real time; the 2s of audio
	// time accumulates quickly.
	select {
	case <-fired:
	case <-time.After(10 * time.Second):
		t.Fatal("silence auto-stop never fired")
	}
}

func TestRecorderStopsOnMicEOF(t *testing.T) {
	g := newTestGateway(t)
	c := NewConn(testConnConfig(g.url()))
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	g.next(5 * time.Second) // handshake

	mic := bytes.NewReader(make([]byte, 1280)) // exactly two frames
	r := NewRecorder(mic, PCMCodec{}, c, RecorderConfig{})
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The loop ends by itself at EOF; Stop still sends the terminal pair.
	time.Sleep(100 * time.Millisecond)
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := r.FramesSent(); got != 2 {
		t.Errorf("frames sent = %d, want 2", got)
	}
}

func TestPCMCodecPassthrough(t *testing.T) {
	in := []byte{1, 2, 3, 4}
	out, err := PCMCodec{}.Encode(in)
	if err != nil || !bytes.Equal(out, in) {
		t.Fatalf("encode = %v, %v", out, err)
	}
	back, err := PCMCodec{}.Decode(out)
	if err != nil || !bytes.Equal(back, in) {
		t.Fatalf("decode = %v, %v", back, err)
	}
	if (PCMCodec{}).Format() != wire.FormatPCM16 {
		t.Error("format tag")
	}
}
