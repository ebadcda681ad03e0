package minimax

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSynthesizeStreamSSE(t *testing.T) {
	chunks := [][]byte{
		{0x01, 0x02, 0x03, 0x04},
		{0x05, 0x06},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/t2a_v2" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: {\"data\":{\"audio\":%q,\"status\":1}}\n\n", hex.EncodeToString(c))
		}
		// Final event repeats the full audio; it must be skipped.
		fmt.Fprintf(w, "data: {\"data\":{\"audio\":%q,\"status\":2},\"extra_info\":{\"audio_sample_rate\":16000}}\n\n",
			hex.EncodeToString(append(chunks[0], chunks[1]...)))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithGroupID("g1"))

	var got []byte
	var sawComplete bool
	for chunk, err := range client.Speech.SynthesizeStream(context.Background(), &SpeechRequest{
		Model: ModelSpeech01Turbo,
		Text:  "hello",
	}) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		got = append(got, chunk.Audio...)
		if chunk.Status == 2 {
			sawComplete = true
			if len(chunk.Audio) != 0 {
				t.Error("complete event carried audio")
			}
			if chunk.ExtraInfo == nil || chunk.ExtraInfo.AudioSampleRate != 16000 {
				t.Errorf("ExtraInfo = %+v", chunk.ExtraInfo)
			}
		}
	}

	want := append(append([]byte{}, chunks[0]...), chunks[1]...)
	if string(got) != string(want) {
		t.Errorf("audio = %x, want %x", got, want)
	}
	if !sawComplete {
		t.Error("no complete event seen")
	}
}

func TestSynthesizeStreamAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"base_resp\":{\"status_code\":1002,\"status_msg\":\"rate limit\"}}\n\n")
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	var gotErr error
	for _, err := range client.Speech.SynthesizeStream(context.Background(), &SpeechRequest{Text: "x"}) {
		if err != nil {
			gotErr = err
			break
		}
	}
	apiErr, ok := AsError(gotErr)
	if !ok {
		t.Fatalf("err = %v, want *Error", gotErr)
	}
	if !apiErr.IsRateLimit() {
		t.Errorf("IsRateLimit = false for %+v", apiErr)
	}
}

func TestSynthesizeStreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"base_resp":{"status_code":1001,"status_msg":"invalid api key"}}`)
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL), WithRetry(0))

	var gotErr error
	for _, err := range client.Speech.SynthesizeStream(context.Background(), &SpeechRequest{Text: "x"}) {
		gotErr = err
		break
	}
	apiErr, ok := AsError(gotErr)
	if !ok {
		t.Fatalf("err = %v, want *Error", gotErr)
	}
	if !apiErr.IsInvalidAPIKey() {
		t.Errorf("IsInvalidAPIKey = false for %+v", apiErr)
	}
}

func TestSynthesizeNonStreamingJSON(t *testing.T) {
	audio := []byte{0xAA, 0xBB, 0xCC}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"audio":%q},"trace_id":"t-1"}`, hex.EncodeToString(audio))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	resp, err := client.Speech.Synthesize(context.Background(), &SpeechRequest{
		Model: ModelSpeech01Turbo,
		Text:  "hello",
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.Audio) != string(audio) {
		t.Errorf("audio = %x, want %x", resp.Audio, audio)
	}
	if resp.TraceID != "t-1" {
		t.Errorf("TraceID = %q", resp.TraceID)
	}
}
