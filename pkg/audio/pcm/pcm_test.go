package pcm

import (
	"testing"
	"time"
)

func TestFormatMath(t *testing.T) {
	f := L16Mono16K

	if got := f.BytesInDuration(20 * time.Millisecond); got != 640 {
		t.Errorf("BytesInDuration(20ms) = %d, want 640", got)
	}
	if got := f.Duration(640); got != 20*time.Millisecond {
		t.Errorf("Duration(640) = %v, want 20ms", got)
	}
	if got := f.Samples(640); got != 320 {
		t.Errorf("Samples(640) = %d, want 320", got)
	}
	if got := f.BytesRate(); got != 32000 {
		t.Errorf("BytesRate = %d, want 32000", got)
	}
}

func TestFormat48K(t *testing.T) {
	f := L16Mono48K
	// 20 ms at 48 kHz mono is 960 samples = 1920 bytes.
	if got := f.BytesInDuration(20 * time.Millisecond); got != 1920 {
		t.Errorf("BytesInDuration(20ms) = %d, want 1920", got)
	}
}

func TestSilence(t *testing.T) {
	f := L16Mono16K
	s := f.Silence(100)
	if len(s) != 100 {
		t.Errorf("Silence(100) len = %d", len(s))
	}
	for _, b := range s {
		if b != 0 {
			t.Fatal("silence is not zero")
		}
	}
	// Odd byte counts align down to whole samples.
	if got := len(f.Silence(101)); got != 100 {
		t.Errorf("Silence(101) len = %d, want 100", got)
	}
	if got := len(f.Silence(-5)); got != 0 {
		t.Errorf("Silence(-5) len = %d, want 0", got)
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(make([]byte, 640)); got != 0 {
		t.Errorf("RMS(silence) = %f, want 0", got)
	}
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}

	// A constant full-scale-ish signal has RMS equal to its amplitude.
	loud := make([]byte, 64)
	for i := 0; i < len(loud); i += 2 {
		loud[i] = 0x00
		loud[i+1] = 0x10 // 4096
	}
	got := RMS(loud)
	if got < 4095 || got > 4097 {
		t.Errorf("RMS(constant 4096) = %f", got)
	}
}
