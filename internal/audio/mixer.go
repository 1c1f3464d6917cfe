package audio

import (
	"sync"

	"github.com/pitchside/commentary-engine/internal/observability"
	"github.com/rs/zerolog"
)

const bytesPerFrame = 4 // 16-bit stereo

// Mixer owns all active playback buffers and produces the device's audio
// stream. The device pulls blocks through Read on the audio subsystem's
// own thread — that call is the realtime callback and must never stall:
// the slot mutex is only ever acquired there with TryLock, and a miss
// renders the block from stale state (ambience only, current gain).
//
// One active TTS slot plus a priority-ordered pending queue. A strictly
// higher-priority submission displaces the active slot at the next block
// boundary; equal or lower priority appends behind it.
type Mixer struct {
	log      zerolog.Logger
	ambience *Ambience
	duck     *Ducking
	capture  bool

	mu      sync.Mutex
	active  *Playback
	pending []*Playback
	ducked  bool
	closed  bool

	ambBuf []int16
	ttsBuf []int16
	mixBuf []int16
}

// NewMixer wires the ambience loop and ducking controller into a mixer.
// capture enables recording each playback's mixed span for the history
// sink.
func NewMixer(ambience *Ambience, duck *Ducking, capture bool, log zerolog.Logger) *Mixer {
	return &Mixer{
		log:      log,
		ambience: ambience,
		duck:     duck,
		capture:  capture,
	}
}

// Capture reports whether the mixer records playback spans.
func (m *Mixer) Capture() bool {
	return m.capture
}

// Submit hands a playback buffer to the mixer. If no slot is active it
// becomes active; a strictly higher-priority buffer preempts the active
// slot (the displaced buffer is discarded and its Result reports how many
// frames it played); otherwise it queues behind the active slot.
func (m *Mixer) Submit(p *Playback) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		p.finish(OutcomeFailed)
		return
	}

	switch {
	case m.active == nil:
		m.active = p
	case p.Priority < m.active.Priority:
		displaced := m.active
		m.active = p
		observability.RecordPreemption()
		m.log.Info().
			Str("displaced_event", displaced.EventID).
			Str("event", p.EventID).
			Int("priority", p.Priority).
			Msg("Playback preempted by higher-priority submission")
		displaced.finish(OutcomePreempted)
	default:
		m.insertPendingLocked(p)
	}
}

// insertPendingLocked keeps the pending queue ordered by priority with
// FIFO within a level. Caller holds m.mu.
func (m *Mixer) insertPendingLocked(p *Playback) {
	i := len(m.pending)
	for ; i > 0; i-- {
		if m.pending[i-1].Priority <= p.Priority {
			break
		}
	}
	m.pending = append(m.pending, nil)
	copy(m.pending[i+1:], m.pending[i:])
	m.pending[i] = p
}

// promoteLocked pops the next pending playback into the active slot.
// Caller holds m.mu.
func (m *Mixer) promoteLocked() {
	if len(m.pending) == 0 {
		m.active = nil
		return
	}
	m.active = m.pending[0]
	copy(m.pending, m.pending[1:])
	m.pending = m.pending[:len(m.pending)-1]
}

// Read renders the next block of interleaved 16-bit stereo frames. Called
// by the output device on its realtime thread.
func (m *Mixer) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	m.ensureScratch(frames)

	amb := m.ambBuf[:frames]
	m.ambience.ReadFrames(amb)

	tts := m.ttsBuf[:frames]
	mixed := m.mixBuf[:frames]
	ttsN := 0

	if m.mu.TryLock() {
		// Clear a slot whose source died before producing any sample:
		// no duck happened, nothing to drain.
		if m.active != nil && m.active.failed() {
			failed := m.active
			m.promoteLocked()
			failed.finish(OutcomeFailed)
		}

		if m.active != nil {
			// Duck only once the first PCM frame has actually arrived;
			// until then the slot is pending and the ambience stays up.
			if !m.ducked && m.active.hasData() {
				m.duck.Duck()
				m.ducked = true
			}
			ttsN = m.active.take(tts)
		}

		m.renderBlock(p, amb, tts[:ttsN], mixed)

		if m.active != nil {
			if ttsN > 0 {
				m.active.recordMix(mixed[:ttsN])
			}
			if m.active.exhausted() {
				finished := m.active
				m.promoteLocked()
				finished.finish(OutcomeFinished)
			}
		}

		// Restore fires only when the slot is idle and nothing is queued.
		if m.ducked && m.active == nil && len(m.pending) == 0 {
			m.duck.Restore()
			m.ducked = false
		}
		m.mu.Unlock()
	} else {
		// Contended: render from stale state for one block.
		observability.RecordUnderrun()
		m.renderBlock(p, amb, nil, mixed)
	}

	return frames * bytesPerFrame, nil
}

// renderBlock mixes ambience (through the ducking ramp) with the TTS
// samples and interleaves the result to stereo 16-bit little-endian.
func (m *Mixer) renderBlock(p []byte, amb, tts, mixed []int16) {
	for i := range amb {
		gain := m.duck.Step()
		v := int32(float64(amb[i]) * gain)
		if i < len(tts) {
			v += int32(tts[i])
		}
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		s := int16(v)
		mixed[i] = s

		lo := byte(uint16(s) & 0xff)
		hi := byte(uint16(s) >> 8)
		p[i*4+0] = lo
		p[i*4+1] = hi
		p[i*4+2] = lo
		p[i*4+3] = hi
	}
}

// ensureScratch grows the reusable block buffers; in the steady state the
// block size is constant and no allocation happens here.
func (m *Mixer) ensureScratch(frames int) {
	if len(m.ambBuf) < frames {
		m.ambBuf = make([]int16, frames)
		m.ttsBuf = make([]int16, frames)
		m.mixBuf = make([]int16, frames)
	}
}

// Idle reports whether no playback is active or queued.
func (m *Mixer) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active == nil && len(m.pending) == 0
}

// Close rejects further submissions and discards the active slot and the
// pending queue; their Results report preemption with the frames played
// so far.
func (m *Mixer) Close() {
	m.mu.Lock()
	m.closed = true
	active := m.active
	pending := m.pending
	m.active = nil
	m.pending = nil
	m.mu.Unlock()

	if active != nil {
		active.finish(OutcomePreempted)
	}
	for _, p := range pending {
		p.finish(OutcomePreempted)
	}
}
