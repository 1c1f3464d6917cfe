package tts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(serverURL string, timeout time.Duration) *Client {
	return NewClient(ClientOptions{
		APIKey:     "test-key",
		BaseURL:    serverURL,
		VoiceID:    "voice-1",
		SampleRate: 22050,
		Timeout:    timeout,
	}, zerolog.Nop())
}

func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func drain(t *testing.T, s *Stream) []int16 {
	t.Helper()
	var all []int16
	for chunk := range s.Chunks {
		all = append(all, chunk...)
	}
	return all
}

func TestSynthesize_StreamsPCM(t *testing.T) {
	want := []int16{100, -200, 300, -400, 500}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		var req synthesisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Text != "Four runs!" {
			t.Errorf("Expected authoritative text, got %q", req.Text)
		}
		w.Write(pcmBytes(want))
	}))
	defer server.Close()

	client := newTestClient(server.URL, time.Second)
	stream, err := client.Synthesize(context.Background(), "Four runs!", 9)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	got := drain(t, stream)
	if stream.Err() != nil {
		t.Fatalf("Expected clean stream end, got %v", stream.Err())
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestSynthesize_FirstByteTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release // hold the response past the client deadline
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(server.URL, 100*time.Millisecond)
	stream, err := client.Synthesize(context.Background(), "slow", 5)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	start := time.Now()
	drain(t, stream)
	elapsed := time.Since(start)

	if !errors.Is(stream.Err(), ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", stream.Err())
	}
	if elapsed > 2*time.Second {
		t.Errorf("Timeout took too long: %v", elapsed)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL, time.Second)
	stream, err := client.Synthesize(context.Background(), "text", 5)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	drain(t, stream)
	if stream.Err() == nil {
		t.Error("Expected error for 500 response")
	}
	if errors.Is(stream.Err(), ErrTimeout) {
		t.Error("Server error should not report as timeout")
	}
}

func TestSynthesize_OddByteHeldForSampleBoundary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		// Split a 2-sample payload across an odd boundary
		data := pcmBytes([]int16{1000, 2000})
		w.Write(data[:3])
		flusher.Flush()
		time.Sleep(20 * time.Millisecond)
		w.Write(data[3:])
	}))
	defer server.Close()

	client := newTestClient(server.URL, time.Second)
	stream, err := client.Synthesize(context.Background(), "split", 5)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	got := drain(t, stream)
	if stream.Err() != nil {
		t.Fatalf("Expected clean end, got %v", stream.Err())
	}
	if len(got) != 2 || got[0] != 1000 || got[1] != 2000 {
		t.Errorf("Expected [1000 2000], got %v", got)
	}
}

func TestSynthesize_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := newTestClient(server.URL, 30*time.Second)
	stream, err := client.Synthesize(ctx, "text", 5)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	cancel()
	drain(t, stream)
	if stream.Err() == nil {
		t.Error("Expected error after context cancellation")
	}
	if errors.Is(stream.Err(), ErrTimeout) {
		t.Error("Cancellation should not report as timeout")
	}
}

func TestSettingsFor_MonotonicInExcitement(t *testing.T) {
	prev := settingsFor(0)
	for e := 1; e <= 10; e++ {
		s := settingsFor(e)
		if s.Stability > prev.Stability {
			t.Errorf("stability increased from excitement %d to %d", e-1, e)
		}
		if s.Speed < prev.Speed {
			t.Errorf("speed decreased from excitement %d to %d", e-1, e)
		}
		if s.Style < prev.Style {
			t.Errorf("style decreased from excitement %d to %d", e-1, e)
		}
		prev = s
	}
}
