package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pitchside/commentary-engine/internal/audio"
	"github.com/pitchside/commentary-engine/internal/config"
	"github.com/pitchside/commentary-engine/internal/events"
	"github.com/pitchside/commentary-engine/internal/history"
	"github.com/pitchside/commentary-engine/internal/observability"
	"github.com/pitchside/commentary-engine/internal/resilience"
	"github.com/pitchside/commentary-engine/internal/state"
	"github.com/pitchside/commentary-engine/internal/stream"
	"github.com/pitchside/commentary-engine/internal/tts"
	"github.com/rs/zerolog"
)

const matchPollInterval = 30 * time.Second

// Orchestrator runs the single consumer loop: pull the next event from
// the queue, resolve match lifecycle announcements, synthesize speech,
// submit it to the mixer, and commit the checkpoint according to the
// playback result. TTS fetches are serialized — the next event is only
// consumed after the current one resolved.
type Orchestrator struct {
	cfg   *config.Config
	queue *events.Queue
	mixer *audio.Mixer
	synth tts.Synthesizer
	api   *stream.APIClient
	sink  *history.Sink // nil when audio saving is disabled
	log   zerolog.Logger

	mu           sync.Mutex
	match        *state.MatchState
	streamClient *stream.Client
	streamCancel context.CancelFunc
	streamDone   chan struct{}

	received atomic.Int64
	spoken   atomic.Int64
	skipped  atomic.Int64
}

// New wires an orchestrator. sink may be nil.
func New(cfg *config.Config, queue *events.Queue, mixer *audio.Mixer, synth tts.Synthesizer, api *stream.APIClient, sink *history.Sink, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:   cfg,
		queue: queue,
		mixer: mixer,
		synth: synth,
		api:   api,
		sink:  sink,
		log:   log,
		match: state.NewMatchState(),
	}
}

// StreamStatus reports the push-connection state for observability.
func (o *Orchestrator) StreamStatus() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.streamClient == nil {
		return stream.StatusClosed
	}
	return o.streamClient.Status()
}

// Run drives the engine until the context is cancelled or the queue is
// closed. It discovers the current match, subscribes the stream client,
// and consumes events serially.
func (o *Orchestrator) Run(ctx context.Context) {
	// Initial match discovery; a configured MATCH_ID skips the lookup.
	if o.cfg.MatchID != "" {
		o.adoptAndQueue(ctx, &state.MatchInfo{MatchID: o.cfg.MatchID})
	} else {
		o.refreshMatch(ctx)
	}

	go o.pollMatch(ctx)

	for {
		ev, err := o.queue.Next(ctx)
		if err != nil {
			if !errors.Is(err, events.ErrClosed) && !errors.Is(err, context.Canceled) {
				o.log.Error().Err(err).Msg("Queue consumer stopped")
			}
			o.stopStream()
			o.logSummary()
			return
		}
		o.received.Add(1)
		o.handleEvent(ctx, ev)
	}
}

// pollMatch periodically re-resolves the current match so a match change
// re-points the stream client and lifecycle announcements fire even when
// no deliveries arrive.
func (o *Orchestrator) pollMatch(ctx context.Context) {
	ticker := time.NewTicker(matchPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.refreshMatch(ctx)
		}
	}
}

// refreshMatch fetches the current match, applies it to the match state,
// and enqueues any due lifecycle announcements as priority-0 events.
func (o *Orchestrator) refreshMatch(ctx context.Context) {
	info, err := o.api.FetchCurrentMatch(ctx)
	if err != nil {
		o.log.Debug().Err(err).Msg("Current-match lookup failed")
		return
	}
	if info == nil {
		return
	}
	o.adoptAndQueue(ctx, info)
}

// adoptAndQueue adopts a match payload and routes any due announcements
// through the event queue, where priority 0 puts them ahead of pending
// deliveries.
func (o *Orchestrator) adoptAndQueue(ctx context.Context, info *state.MatchInfo) {
	for _, ann := range o.adoptMatch(ctx, info) {
		if err := o.queue.Admit(ann); err != nil {
			o.log.Warn().Err(err).Str("event_id", ann.EventID).Msg("Failed to queue announcement")
		}
	}
}

// adoptMatch applies a match payload: resets state on a match change and
// re-subscribes the stream client. Returns lifecycle announcements that
// became due; the caller decides whether to queue them or speak inline.
func (o *Orchestrator) adoptMatch(ctx context.Context, info *state.MatchInfo) []*events.Event {
	o.mu.Lock()
	isNew := o.match.Update(info)
	matchID := o.match.MatchID
	if matchID == "" {
		matchID = info.MatchID
		o.match.MatchID = matchID
	}
	needSubscribe := isNew || (o.streamClient == nil && matchID != "")
	var announcements []*events.Event
	if matchID != "" {
		announcements = o.dueAnnouncementsLocked()
	}
	o.mu.Unlock()

	if matchID == "" {
		return nil
	}
	o.queue.SetMatchID(matchID)

	if isNew {
		o.log.Info().Str("match_id", matchID).Msg("New match adopted")
	}
	if needSubscribe {
		o.subscribe(ctx, matchID)
	}
	return announcements
}

// dueAnnouncementsLocked builds synthetic priority-0 events for lifecycle
// phases that have not been announced yet, latching their one-shot flags.
// Caller holds o.mu.
func (o *Orchestrator) dueAnnouncementsLocked() []*events.Event {
	var out []*events.Event

	mk := func(text string, excitement int) *events.Event {
		return &events.Event{
			EventID:   "announcement-" + uuid.New().String(),
			MatchID:   o.match.MatchID,
			Text:      text,
			Intensity: intensityFor(excitement),
			Priority:  events.PriorityAnnouncement,
		}
	}

	if o.match.ShouldAnnounceWelcome() {
		text, excitement := o.match.WelcomeText()
		out = append(out, mk(text, excitement))
		o.match.MarkWelcomed()
	}
	if o.match.ShouldAnnounceBreak() {
		text, excitement := o.match.BreakText()
		out = append(out, mk(text, excitement))
		o.match.MarkBreakAnnounced()
	}
	if o.match.ShouldAnnounceEnd() {
		text, excitement := o.match.EndText()
		out = append(out, mk(text, excitement))
		o.match.MarkEndAnnounced()
	}
	return out
}

// intensityFor reverses the excitement mapping for synthetic events so
// they carry a plausible intensity label.
func intensityFor(excitement int) string {
	switch {
	case excitement <= 2:
		return "low"
	case excitement <= 5:
		return "normal"
	case excitement <= 7:
		return "medium"
	case excitement <= 9:
		return "high"
	default:
		return "extreme"
	}
}

// subscribe (re)starts the stream client for the given match.
func (o *Orchestrator) subscribe(ctx context.Context, matchID string) {
	o.stopStream()

	streamCtx, cancel := context.WithCancel(ctx)
	backoff := resilience.NewBackoff(o.cfg.ReconnectInitial(), o.cfg.ReconnectMax())
	client := stream.NewClient(o.cfg.APIBaseURL, o.cfg.WSAuthToken, matchID, o.queue, o.api, backoff, o.log)
	done := make(chan struct{})

	o.mu.Lock()
	o.streamClient = client
	o.streamCancel = cancel
	o.streamDone = done
	o.mu.Unlock()

	go func() {
		defer close(done)
		client.Run(streamCtx)
	}()
	o.log.Info().Str("match_id", matchID).Msg("Stream client subscribed")
}

// stopStream cancels the running stream client, if any, and waits for it
// to unwind.
func (o *Orchestrator) stopStream() {
	o.mu.Lock()
	cancel := o.streamCancel
	done := o.streamDone
	o.streamCancel = nil
	o.streamClient = nil
	o.streamDone = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// handleEvent dispatches one event from the queue. A match id the engine
// has not seen yet resets the match state and re-subscribes.
func (o *Orchestrator) handleEvent(ctx context.Context, ev *events.Event) {
	o.mu.Lock()
	matchChanged := ev.MatchID != "" && ev.MatchID != o.match.MatchID
	o.mu.Unlock()
	if matchChanged {
		// Resolve the full match payload when the API agrees on the id,
		// so announcements carry real team names.
		info, err := o.api.FetchCurrentMatch(ctx)
		if err != nil || info == nil || info.MatchID != ev.MatchID {
			info = &state.MatchInfo{MatchID: ev.MatchID}
		}
		// Lifecycle announcements that became due are spoken ahead of
		// the inbound event.
		for _, ann := range o.adoptMatch(ctx, info) {
			o.speak(ctx, ann, true)
		}
	}

	if ev.Text == "" {
		o.log.Warn().Str("event_id", ev.EventID).Msg("Event has empty text, skipping")
		o.skipped.Add(1)
		observability.RecordSkipped("empty_text")
		o.commit(ev.EventID)
		return
	}

	// Announcements are committed as soon as the mixer accepts them;
	// everything else commits on the playback result.
	commitEarly := ev.Priority == events.PriorityAnnouncement
	o.speak(ctx, ev, commitEarly)
}

// speak synthesizes the event and plays it through the mixer, applying
// the commit policy to the playback result:
//   - finished: commit
//   - preempted after at least one frame: commit (partial counts as spoken)
//   - preempted before any frame: drop, the replacement commits instead
//   - TTS failure or timeout: commit as skipped so it is not retried
func (o *Orchestrator) speak(ctx context.Context, ev *events.Event, commitEarly bool) {
	ttsStream, err := o.synth.Synthesize(ctx, ev.Text, ev.Excitement())
	if err != nil {
		o.log.Error().Err(err).Str("event_id", ev.EventID).Msg("TTS request failed, skipping event")
		o.skipped.Add(1)
		observability.RecordSkipped("tts_error")
		o.commit(ev.EventID)
		return
	}

	playback := audio.NewPlayback(ev.EventID, ev.Priority, o.mixer.Capture())
	o.mixer.Submit(playback)
	if commitEarly {
		o.commit(ev.EventID)
	}

	// Pump the TTS stream into the playback buffer off this goroutine;
	// the mixer picks samples up as they land.
	go func() {
		for chunk := range ttsStream.Chunks {
			playback.Append(chunk)
		}
		playback.CloseSource(ttsStream.Err())
	}()

	var res audio.Result
	select {
	case res = <-playback.Done():
	case <-ctx.Done():
		return
	}

	switch res.Outcome {
	case audio.OutcomeFinished:
		o.spoken.Add(1)
		observability.RecordSpoken()
		if res.Err != nil {
			o.log.Warn().Err(res.Err).Str("event_id", ev.EventID).Msg("Playback truncated by stream error")
		} else {
			o.log.Info().
				Str("event_id", ev.EventID).
				Str("intensity", ev.Intensity).
				Int("excitement", ev.Excitement()).
				Int("priority", ev.Priority).
				Msg("Event spoken")
		}
		if !commitEarly {
			o.commit(ev.EventID)
		}
		o.archive(ev, res)

	case audio.OutcomePreempted:
		if res.FramesPlayed > 0 {
			o.spoken.Add(1)
			observability.RecordSpoken()
			o.log.Info().Str("event_id", ev.EventID).Int("frames_played", res.FramesPlayed).Msg("Event preempted after partial playback")
			if !commitEarly {
				o.commit(ev.EventID)
			}
		} else {
			o.skipped.Add(1)
			observability.RecordSkipped("preempted")
			o.log.Info().Str("event_id", ev.EventID).Msg("Event dropped by preemption before playback")
		}

	case audio.OutcomeFailed:
		o.skipped.Add(1)
		reason := "tts_error"
		if errors.Is(res.Err, tts.ErrTimeout) {
			reason = "tts_timeout"
		}
		observability.RecordSkipped(reason)
		o.log.Warn().Err(res.Err).Str("event_id", ev.EventID).Msg("Event skipped, no audio produced")
		if !commitEarly {
			o.commit(ev.EventID)
		}
	}
}

// archive hands a finished playback's mixed span to the history sink.
func (o *Orchestrator) archive(ev *events.Event, res audio.Result) {
	if o.sink == nil || len(res.Captured) == 0 {
		return
	}
	o.sink.Enqueue(history.Entry{
		EventID: ev.EventID,
		MatchID: ev.MatchID,
		Samples: res.Captured,
	})
}

// commit advances the durable checkpoint. A write failure logs at error;
// the in-memory checkpoint has already advanced and the next successful
// write recovers.
func (o *Orchestrator) commit(eventID string) {
	if err := o.queue.Commit(eventID); err != nil {
		o.log.Error().Err(err).Str("event_id", eventID).Msg("Failed to persist checkpoint")
	}
}

// logSummary emits the session counters at shutdown.
func (o *Orchestrator) logSummary() {
	o.log.Info().
		Int64("events_received", o.received.Load()).
		Int64("events_spoken", o.spoken.Load()).
		Int64("events_skipped", o.skipped.Load()).
		Int("queue_depth", o.queue.Depth()).
		Msg("Session summary")
}
