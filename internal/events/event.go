package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Priority levels, smaller = higher. Announcements always win the mixer
// slot, wickets beat regular deliveries.
const (
	PriorityAnnouncement = 0
	PrioritySpecial      = 1
	PriorityNormal       = 2
)

// intensityMap is the fixed intensity -> excitement mapping. Excitement is
// a 0-10 integer consumed by the TTS voice-settings derivation.
var intensityMap = map[string]int{
	"low":     2,
	"normal":  5,
	"medium":  7,
	"high":    9,
	"extreme": 10,
}

// Event is one unit of commentary. Immutable once admitted. The text is
// authoritative and is never transformed on its way to the TTS provider.
type Event struct {
	EventID     string
	MatchID     string
	BatsmanName string
	Text        string
	Intensity   string
	Priority    int
}

// wireEvent is the push-channel payload shape. priority_class is the
// authoritative classification; ball_detection_id is the legacy id field
// older publishers still send.
type wireEvent struct {
	EventID         string `json:"event_id"`
	BallDetectionID string `json:"ball_detection_id"`
	MatchID         string `json:"match_id"`
	BatsmanName     string `json:"batsman_name"`
	Sentences       string `json:"sentences"`
	Intensity       string `json:"intensity"`
	PriorityClass   string `json:"priority_class"`
}

// Parse decodes a push-channel frame into an Event. Malformed payloads
// (bad JSON, missing id) return an error and are dropped by the caller.
func Parse(data []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}

	id := w.EventID
	if id == "" {
		id = w.BallDetectionID
	}
	if id == "" {
		return nil, fmt.Errorf("event payload missing event_id")
	}

	ev := &Event{
		EventID:     id,
		MatchID:     w.MatchID,
		BatsmanName: w.BatsmanName,
		Text:        strings.TrimSpace(w.Sentences),
		Intensity:   strings.ToLower(strings.TrimSpace(w.Intensity)),
		Priority:    classify(w.PriorityClass, w.BallDetectionID),
	}
	return ev, nil
}

// classify resolves the event priority. The explicit priority_class field
// wins; the legacy ball_detection_id prefix (special_event_<type>_<ts>) is
// a fallback for older publishers; everything else is a normal delivery.
func classify(priorityClass, ballDetectionID string) int {
	switch strings.ToLower(strings.TrimSpace(priorityClass)) {
	case "announcement":
		return PriorityAnnouncement
	case "special":
		return PrioritySpecial
	case "normal":
		return PriorityNormal
	}

	parts := strings.Split(ballDetectionID, "_")
	if len(parts) >= 3 && parts[0] == "special" && parts[1] == "event" {
		switch strings.ToLower(parts[2]) {
		case "announcement", "system":
			return PriorityAnnouncement
		case "wicket", "special":
			return PrioritySpecial
		}
	}
	return PriorityNormal
}

// Excitement maps the event intensity to the 0-10 excitement integer.
// Unknown intensities fall back to the "normal" level.
func (e *Event) Excitement() int {
	if v, ok := intensityMap[e.Intensity]; ok {
		return v
	}
	return intensityMap["normal"]
}
