package resampler

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/pommai/toygate/pkg/audio/pcm"
)

// sine generates n PCM16 mono samples of a tone at the given rate.
func sine(n int, freq float64, rate int) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(10000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

func TestPassthroughSameRate(t *testing.T) {
	src := sine(1600, 440, 16000)
	rs, err := New(bytes.NewReader(src), pcm.L16Mono16K, pcm.L16Mono16K)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()

	got, err := io.ReadAll(rs)
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Errorf("passthrough changed data: got %d bytes, want %d", len(got), len(src))
	}
}

func TestUpsample16To48(t *testing.T) {
	// One second of tone at 16 kHz should come out near one second at 48 kHz.
	src := sine(16000, 440, 16000)
	rs, err := New(bytes.NewReader(src), pcm.L16Mono16K, pcm.L16Mono48K)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()

	got, err := io.ReadAll(rs)
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	want := len(src) * 3
	// Converter delay trims a little from either end.
	if len(got) < want*9/10 || len(got) > want*11/10 {
		t.Errorf("output = %d bytes, want about %d", len(got), want)
	}
	if len(got)%2 != 0 {
		t.Errorf("output not sample aligned: %d bytes", len(got))
	}
}

func TestDownsample24To16(t *testing.T) {
	src := sine(24000, 440, 24000)
	rs, err := New(bytes.NewReader(src), pcm.L16Mono24K, pcm.L16Mono16K)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()

	got, err := io.ReadAll(rs)
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	want := len(src) * 2 / 3
	if len(got) < want*9/10 || len(got) > want*11/10 {
		t.Errorf("output = %d bytes, want about %d", len(got), want)
	}
}

func TestRejectsStereo(t *testing.T) {
	_, err := New(bytes.NewReader(nil), pcm.Format{Rate: 16000, Channels: 2}, pcm.L16Mono48K)
	if err == nil {
		t.Error("stereo source accepted")
	}
}

func TestShortBuffer(t *testing.T) {
	rs, err := New(bytes.NewReader(sine(100, 440, 16000)), pcm.L16Mono16K, pcm.L16Mono16K)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()

	if _, err := rs.Read(make([]byte, 1)); !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("err = %v, want ErrShortBuffer", err)
	}
}

func TestCloseWithError(t *testing.T) {
	rs, err := New(bytes.NewReader(sine(100, 440, 16000)), pcm.L16Mono16K, pcm.L16Mono48K)
	if err != nil {
		t.Fatal(err)
	}

	sentinel := errors.New("stream torn down")
	if err := rs.CloseWithError(sentinel); err != nil {
		t.Fatal(err)
	}
	if _, err := rs.Read(make([]byte, 64)); !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want sentinel", err)
	}
}

func TestSampleReaderAlignment(t *testing.T) {
	// Source that delivers an odd byte count per read.
	src := &oddReader{data: sine(10, 440, 16000)}
	sr := newSampleReader(src, 2)

	var out []byte
	buf := make([]byte, 8)
	for {
		n, err := sr.Read(buf)
		if n%2 != 0 && err == nil {
			t.Fatalf("unaligned read of %d bytes", n)
		}
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}
	if len(out) != 20 {
		t.Errorf("total = %d bytes, want 20", len(out))
	}
}

type oddReader struct {
	data []byte
	off  int
}

func (r *oddReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := 3
	if n > len(r.data)-r.off {
		n = len(r.data) - r.off
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[r.off:r.off+n])
	r.off += n
	return n, nil
}
