package tts

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/pommai/toygate/pkg/wire"
)

// fakeProvider yields scripted chunks, optionally ending with an error.
type fakeProvider struct {
	name   string
	chunks [][]byte
	err    error
}

func (p *fakeProvider) Name() string        { return p.name }
func (p *fakeProvider) AudioFormat() string { return wire.FormatPCM16 }
func (p *fakeProvider) SampleRate() int     { return 16000 }

func (p *fakeProvider) Stream(ctx context.Context, text string, cfg VoiceConfig) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, c := range p.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if p.err != nil {
			yield(nil, p.err)
		}
	}
}

func seqOf(chunks ...[]byte) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func TestCoalesce(t *testing.T) {
	t.Run("small chunks merge", func(t *testing.T) {
		var got [][]byte
		src := seqOf(make([]byte, 400), make([]byte, 400), make([]byte, 400))
		for c, err := range Coalesce(src, 1024) {
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, c)
		}
		if len(got) != 2 {
			t.Fatalf("chunks = %d, want 2", len(got))
		}
		if len(got[0]) != 1024 {
			t.Errorf("first chunk = %d bytes, want 1024", len(got[0]))
		}
		if len(got[1]) != 176 {
			t.Errorf("tail chunk = %d bytes, want 176", len(got[1]))
		}
	})

	t.Run("big chunk splits", func(t *testing.T) {
		var got [][]byte
		for c, err := range Coalesce(seqOf(make([]byte, 3000)), 1024) {
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, c)
		}
		if len(got) != 3 {
			t.Fatalf("chunks = %d, want 3", len(got))
		}
	})

	t.Run("error passes through", func(t *testing.T) {
		boom := errors.New("boom")
		src := func(yield func([]byte, error) bool) {
			yield(nil, boom)
		}
		for _, err := range Coalesce(src, 1024) {
			if !errors.Is(err, boom) {
				t.Errorf("err = %v", err)
			}
		}
	})
}

func TestRegistryDefault(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Default(); err == nil {
		t.Error("empty registry returned a default")
	}

	mm := &fakeProvider{name: ProviderMiniMax}
	r.Register(mm)
	if p, _ := r.Default(); p.Name() != ProviderMiniMax {
		t.Errorf("default = %q, want minimax", p.Name())
	}

	// ElevenLabs takes precedence once registered.
	el := &fakeProvider{name: ProviderElevenLabs}
	r.Register(el)
	if p, _ := r.Default(); p.Name() != ProviderElevenLabs {
		t.Errorf("default = %q, want elevenlabs", p.Name())
	}

	// A pinned default overrides the precedence order.
	if err := r.SetDefault(ProviderMiniMax); err != nil {
		t.Fatalf("set default: %v", err)
	}
	if p, _ := r.Default(); p.Name() != ProviderMiniMax {
		t.Errorf("pinned default = %q, want minimax", p.Name())
	}
	if err := r.SetDefault("nope"); err == nil {
		t.Error("unknown provider accepted as default")
	}
}

func TestStreamerHappyPath(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{
		name:   ProviderElevenLabs,
		chunks: [][]byte{bytes.Repeat([]byte{1}, 2048)},
	})
	s := NewStreamer(r)

	var got []byte
	for c, err := range s.Stream(context.Background(), "hi", "", VoiceConfig{}) {
		if err != nil {
			t.Fatal(err)
		}
		if c.Provider != ProviderElevenLabs || c.SampleRate != 16000 {
			t.Errorf("chunk meta = %+v", c)
		}
		got = append(got, c.Audio...)
	}
	if len(got) != 2048 {
		t.Errorf("audio = %d bytes, want 2048", len(got))
	}
}

func TestStreamerFallsBackToDefault(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{name: ProviderMiniMax, err: errors.New("quota")})
	r.Register(&fakeProvider{
		name:   ProviderElevenLabs,
		chunks: [][]byte{bytes.Repeat([]byte{2}, 1500)},
	})
	s := NewStreamer(r)

	var providers []string
	for c, err := range s.Stream(context.Background(), "hi", ProviderMiniMax, VoiceConfig{}) {
		if err != nil {
			t.Fatal(err)
		}
		providers = append(providers, c.Provider)
	}
	for _, p := range providers {
		if p != ProviderElevenLabs {
			t.Errorf("chunk from %q, want fallback provider", p)
		}
	}
	if len(providers) == 0 {
		t.Fatal("no audio from fallback")
	}
}

func TestStreamerBothFail(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{name: ProviderMiniMax, err: errors.New("quota")})
	r.Register(&fakeProvider{name: ProviderElevenLabs, err: errors.New("down")})
	s := NewStreamer(r)

	var gotErr error
	for _, err := range s.Stream(context.Background(), "hi", ProviderMiniMax, VoiceConfig{}) {
		if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, ErrSynthesisFailed) {
		t.Errorf("err = %v, want ErrSynthesisFailed", gotErr)
	}
}

func TestStreamerDefaultFailsNoRetry(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{name: ProviderElevenLabs, err: errors.New("down")})
	s := NewStreamer(r)

	var gotErr error
	for _, err := range s.Stream(context.Background(), "hi", "", VoiceConfig{}) {
		if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, ErrSynthesisFailed) {
		t.Errorf("err = %v, want ErrSynthesisFailed", gotErr)
	}
}

func TestStreamerUnknownProviderUsesDefault(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{
		name:   ProviderElevenLabs,
		chunks: [][]byte{make([]byte, 1024)},
	})
	s := NewStreamer(r)

	var n int
	for c, err := range s.Stream(context.Background(), "hi", "nonexistent", VoiceConfig{}) {
		if err != nil {
			t.Fatal(err)
		}
		if c.Provider != ProviderElevenLabs {
			t.Errorf("provider = %q", c.Provider)
		}
		n++
	}
	if n == 0 {
		t.Fatal("no audio")
	}
}
