package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event pipeline metrics
	eventsAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentary_events_admitted_total",
		Help: "Events offered to the queue, by admission outcome",
	}, []string{"outcome"}) // "admitted", "duplicate", "malformed"

	eventsSpoken = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commentary_events_spoken_total",
		Help: "Events whose audio was handed to the output device",
	})

	eventsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentary_events_skipped_total",
		Help: "Events dropped without full playback, by reason",
	}, []string{"reason"}) // "tts_timeout", "tts_error", "preempted", "empty_text"

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "commentary_queue_depth",
		Help: "Events currently pending in the priority queue",
	})

	// TTS metrics
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentary_tts_requests_total",
		Help: "Total number of TTS synthesis requests",
	}, []string{"status"})

	ttsFirstByteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "commentary_tts_first_byte_seconds",
		Help:    "Latency from TTS request start to first streamed byte",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 8.0},
	})

	// Stream client metrics
	streamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commentary_stream_reconnects_total",
		Help: "Reconnection attempts made by the push-stream client",
	})

	catchupEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commentary_catchup_events_total",
		Help: "Events fetched from the missed-events endpoint",
	})

	// Mixer metrics
	mixerPreemptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commentary_mixer_preemptions_total",
		Help: "Active playbacks displaced by a higher-priority submission",
	})

	deviceUnderruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commentary_device_underruns_total",
		Help: "Output blocks rendered from stale state or zero-fill",
	})

	// History sink metrics
	historyDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commentary_history_drops_total",
		Help: "History entries dropped because the sink queue was full",
	})

	historyWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentary_history_writes_total",
		Help: "History entries persisted, by status",
	}, []string{"status"})
)

// RecordAdmission records a queue admission outcome
func RecordAdmission(outcome string) {
	eventsAdmitted.WithLabelValues(outcome).Inc()
}

// RecordSpoken records an event whose audio reached the output device,
// including partial playback cut short by preemption
func RecordSpoken() {
	eventsSpoken.Inc()
}

// RecordSkipped records a skipped event with a reason
func RecordSkipped(reason string) {
	eventsSkipped.WithLabelValues(reason).Inc()
}

// SetQueueDepth updates the pending-event gauge
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordTTSRequest records a synthesis attempt outcome
func RecordTTSRequest(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ttsRequests.WithLabelValues(status).Inc()
}

// ObserveTTSFirstByte records time-to-first-byte for a synthesis stream
func ObserveTTSFirstByte(seconds float64) {
	ttsFirstByteLatency.Observe(seconds)
}

// RecordReconnect counts a stream reconnection attempt
func RecordReconnect() {
	streamReconnects.Inc()
}

// RecordCatchupEvents counts events recovered via the missed-events endpoint
func RecordCatchupEvents(n int) {
	catchupEvents.Add(float64(n))
}

// RecordPreemption counts a mixer slot preemption
func RecordPreemption() {
	mixerPreemptions.Inc()
}

// RecordUnderrun counts an output underrun
func RecordUnderrun() {
	deviceUnderruns.Inc()
}

// RecordHistoryDrop counts a dropped history entry
func RecordHistoryDrop() {
	historyDrops.Inc()
}

// RecordHistoryWrite records a history persistence attempt
func RecordHistoryWrite(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	historyWrites.WithLabelValues(status).Inc()
}
