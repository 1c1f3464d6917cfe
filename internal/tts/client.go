package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pitchside/commentary-engine/internal/observability"
	"github.com/rs/zerolog"
)

const readChunkBytes = 4096

// Client streams PCM speech from an ElevenLabs-style TTS API. It runs on
// a worker distinct from the mixer callback, never writes to disk, and
// never touches the audio device.
type Client struct {
	apiKey     string
	baseURL    string
	voiceID    string
	modelID    string
	sampleRate int
	timeout    time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

// voiceSettings is the provider's emotion parametrization. The bands are
// monotonic in excitement: higher excitement lowers stability and raises
// style and speed.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	Speed           float64 `json:"speed"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// synthesisRequest is the request payload for the streaming endpoint.
type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// ClientOptions configures a Client.
type ClientOptions struct {
	APIKey     string
	BaseURL    string
	VoiceID    string
	ModelID    string
	SampleRate int
	Timeout    time.Duration // deadline for the first streamed byte
}

// NewClient creates a streaming TTS client.
func NewClient(opts ClientOptions, log zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.elevenlabs.io"
	}
	if opts.ModelID == "" {
		opts.ModelID = "eleven_multilingual_v2"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    opts.BaseURL,
		voiceID:    opts.VoiceID,
		modelID:    opts.ModelID,
		sampleRate: opts.SampleRate,
		timeout:    opts.Timeout,
		httpClient: &http.Client{},
		log:        log,
	}
}

// settingsFor maps excitement to the provider's voice-settings bands.
func settingsFor(excitement int) voiceSettings {
	s := voiceSettings{SimilarityBoost: 0.9, UseSpeakerBoost: true}
	switch {
	case excitement == 0:
		s.Stability = 0.5
		s.Speed = 0.9
		s.Style = 0.7
	case excitement < 6:
		s.Stability = 0.3
		s.Speed = 0.95
		s.Style = 0.9
	default:
		s.Stability = 0.15
		s.Speed = 1.0
		s.Style = 0.9
	}
	return s
}

// Synthesize opens a streaming request and returns immediately with a
// Stream of decoded PCM16 chunks. If no byte arrives within the client's
// timeout of the request start, the fetch is abandoned and the stream
// ends with ErrTimeout. Chunks always split on a sample boundary.
func (c *Client) Synthesize(ctx context.Context, text string, excitement int) (*Stream, error) {
	reqBody := synthesisRequest{
		Text:          text,
		ModelID:       c.modelID,
		VoiceSettings: settingsFor(excitement),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=pcm_%d",
		c.baseURL, url.PathEscape(c.voiceID), c.sampleRate)

	// The first-byte deadline covers the dial, the request, and the wait
	// for the first chunk; once bytes flow the stream runs on ctx alone.
	fetchCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	chunks := make(chan []int16, 16)
	stream := &Stream{Chunks: chunks}
	start := time.Now()

	firstByte := time.AfterFunc(c.timeout, cancel)

	go func() {
		defer close(chunks)
		defer cancel()

		resp, err := c.httpClient.Do(req)
		if err != nil {
			firstByte.Stop()
			if fetchCtx.Err() != nil && ctx.Err() == nil {
				stream.err = ErrTimeout
			} else {
				stream.err = fmt.Errorf("tts request failed: %w", err)
			}
			observability.RecordTTSRequest(false)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			firstByte.Stop()
			stream.err = fmt.Errorf("tts API returned status %d", resp.StatusCode)
			observability.RecordTTSRequest(false)
			return
		}

		buf := make([]byte, readChunkBytes)
		var dangling byte
		haveDangling := false
		gotFirst := false

		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				if !gotFirst {
					gotFirst = true
					firstByte.Stop()
					observability.ObserveTTSFirstByte(time.Since(start).Seconds())
				}

				data := buf[:n]
				if haveDangling {
					data = append([]byte{dangling}, data...)
					haveDangling = false
				}
				// Hold a trailing odd byte so chunks land on a sample
				// boundary.
				if len(data)%2 != 0 {
					dangling = data[len(data)-1]
					haveDangling = true
					data = data[:len(data)-1]
				}

				if len(data) > 0 {
					samples := make([]int16, len(data)/2)
					for i := range samples {
						samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
					}
					select {
					case chunks <- samples:
					case <-ctx.Done():
						stream.err = ctx.Err()
						return
					}
				}
			}
			if readErr != nil {
				if !gotFirst {
					firstByte.Stop()
					if fetchCtx.Err() != nil && ctx.Err() == nil {
						stream.err = ErrTimeout
					} else {
						stream.err = fmt.Errorf("tts stream ended before first byte: %w", readErr)
					}
					observability.RecordTTSRequest(false)
					return
				}
				// Truncation after the first byte plays out what arrived;
				// the cut lands on the last decoded sample boundary.
				if !errors.Is(readErr, io.EOF) {
					c.log.Warn().Err(readErr).Msg("TTS stream truncated")
				}
				observability.RecordTTSRequest(true)
				return
			}
		}
	}()

	return stream, nil
}
