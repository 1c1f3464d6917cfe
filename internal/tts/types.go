package tts

import (
	"context"
	"errors"
)

// ErrTimeout is returned when no byte arrives from the provider within
// the configured deadline of the request start. The event is skipped.
var ErrTimeout = errors.New("tts stream timeout")

// Stream delivers decoded PCM16 sample chunks as they arrive from the
// provider. Chunks closes when the stream ends. The terminal error is
// written before the channel closes, so Err is valid once Chunks is
// drained.
type Stream struct {
	Chunks <-chan []int16

	err error
}

// Err returns the terminal stream error, nil on a clean end. Only valid
// after Chunks has closed.
func (s *Stream) Err() error {
	return s.err
}

// NewStaticStream builds a pre-resolved stream: the samples arrive as a
// single chunk (when non-empty) and the stream ends with err. Used by
// fakes in tests and by callers that already hold the full clip.
func NewStaticStream(samples []int16, err error) *Stream {
	ch := make(chan []int16, 1)
	if len(samples) > 0 {
		ch <- samples
	}
	close(ch)
	return &Stream{Chunks: ch, err: err}
}

// Synthesizer converts commentary text into a PCM sample stream. The
// excitement integer (0-10) parametrizes voice emotion monotonically.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, excitement int) (*Stream, error)
}
