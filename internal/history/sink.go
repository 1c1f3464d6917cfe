package history

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pitchside/commentary-engine/internal/audio"
	"github.com/pitchside/commentary-engine/internal/observability"
	"github.com/rs/zerolog"
)

const queueSize = 16

// Entry is one finished playback handed off for persistence: the mixed
// waveform of the event's span plus its identifying metadata.
type Entry struct {
	EventID string
	MatchID string
	Samples []int16
}

// Sink persists played audio asynchronously: a WAV file under the
// configured directory plus a metadata row in the history database.
// Strictly best-effort — a full queue drops the entry, a write failure
// logs, and neither ever blocks the core pipeline.
type Sink struct {
	dir        string
	sampleRate int
	db         *DB
	log        zerolog.Logger

	ch   chan Entry
	done chan struct{}
}

// NewSink starts the background writer. db may be nil, in which case only
// WAV files are written.
func NewSink(dir string, sampleRate int, db *DB, log zerolog.Logger) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audio history directory: %w", err)
	}

	s := &Sink{
		dir:        dir,
		sampleRate: sampleRate,
		db:         db,
		log:        log,
		ch:         make(chan Entry, queueSize),
		done:       make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Enqueue offers an entry to the writer without blocking. Entries are
// dropped when the queue is full; drops are counted and logged, never
// retried.
func (s *Sink) Enqueue(e Entry) {
	select {
	case s.ch <- e:
	default:
		observability.RecordHistoryDrop()
		s.log.Warn().Str("event_id", e.EventID).Msg("History queue full, dropping entry")
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for e := range s.ch {
		s.persist(e)
	}
}

func (s *Sink) persist(e Entry) {
	path := filepath.Join(s.dir, e.EventID+".wav")

	data, err := audio.EncodeWAV(e.Samples, s.sampleRate)
	if err != nil {
		observability.RecordHistoryWrite(false)
		s.log.Error().Err(err).Str("event_id", e.EventID).Msg("Failed to encode history WAV")
		return
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		observability.RecordHistoryWrite(false)
		s.log.Error().Err(err).Str("event_id", e.EventID).Msg("Failed to write history WAV")
		return
	}

	duration := float64(len(e.Samples)) / float64(s.sampleRate)
	if s.db != nil {
		if err := s.db.InsertRow(e.EventID, e.MatchID, path, duration, time.Now().UTC()); err != nil {
			observability.RecordHistoryWrite(false)
			s.log.Error().Err(err).Str("event_id", e.EventID).Msg("Failed to insert history row")
			return
		}
	}

	observability.RecordHistoryWrite(true)
	s.log.Debug().
		Str("event_id", e.EventID).
		Str("path", path).
		Float64("duration_seconds", duration).
		Msg("History entry persisted")
}

// Close stops accepting entries and waits for the queue to drain, up to
// the given deadline.
func (s *Sink) Close(timeout time.Duration) {
	close(s.ch)
	select {
	case <-s.done:
	case <-time.After(timeout):
		s.log.Warn().Msg("History sink close deadline reached, abandoning queued entries")
	}
}
