package events

import (
	"testing"
)

func TestParse(t *testing.T) {
	payload := `{
		"event_id": "e1",
		"match_id": "m1",
		"batsman_name": "R. Sharma",
		"sentences": "Four runs! Cracked away to the boundary!",
		"intensity": "HIGH",
		"priority_class": "normal"
	}`

	ev, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if ev.EventID != "e1" {
		t.Errorf("Expected EventID 'e1', got '%s'", ev.EventID)
	}
	if ev.MatchID != "m1" {
		t.Errorf("Expected MatchID 'm1', got '%s'", ev.MatchID)
	}
	if ev.Text != "Four runs! Cracked away to the boundary!" {
		t.Errorf("Unexpected text: %q", ev.Text)
	}
	if ev.Intensity != "high" {
		t.Errorf("Expected normalized intensity 'high', got '%s'", ev.Intensity)
	}
	if ev.Priority != PriorityNormal {
		t.Errorf("Expected priority %d, got %d", PriorityNormal, ev.Priority)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"bad json", `{not json`},
		{"missing id", `{"match_id":"m1","sentences":"hello"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.payload)); err == nil {
				t.Error("Expected parse error, got nil")
			}
		})
	}
}

func TestParse_LegacyBallDetectionID(t *testing.T) {
	payload := `{
		"ball_detection_id": "special_event_wicket_1722450000",
		"match_id": "m1",
		"sentences": "OUT! What a beauty!",
		"intensity": "extreme"
	}`

	ev, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if ev.EventID != "special_event_wicket_1722450000" {
		t.Errorf("Expected legacy id as EventID, got '%s'", ev.EventID)
	}
	if ev.Priority != PrioritySpecial {
		t.Errorf("Expected wicket to classify as special (%d), got %d", PrioritySpecial, ev.Priority)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		priorityClass string
		legacyID      string
		want          int
	}{
		{"explicit announcement", "announcement", "", PriorityAnnouncement},
		{"explicit special", "special", "", PrioritySpecial},
		{"explicit normal", "normal", "", PriorityNormal},
		{"explicit wins over legacy", "normal", "special_event_wicket_123", PriorityNormal},
		{"legacy announcement", "", "special_event_announcement_123", PriorityAnnouncement},
		{"legacy system", "", "special_event_system_123", PriorityAnnouncement},
		{"legacy wicket", "", "special_event_wicket_123", PrioritySpecial},
		{"legacy special", "", "special_event_special_123", PrioritySpecial},
		{"legacy plain delivery", "", "delivery_42", PriorityNormal},
		{"nothing set", "", "", PriorityNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.priorityClass, tt.legacyID)
			if got != tt.want {
				t.Errorf("classify(%q, %q) = %d, want %d", tt.priorityClass, tt.legacyID, got, tt.want)
			}
		})
	}
}

func TestExcitement(t *testing.T) {
	tests := []struct {
		intensity string
		want      int
	}{
		{"low", 2},
		{"normal", 5},
		{"medium", 7},
		{"high", 9},
		{"extreme", 10},
		{"unknown", 5},
		{"", 5},
	}

	for _, tt := range tests {
		t.Run(tt.intensity, func(t *testing.T) {
			ev := &Event{Intensity: tt.intensity}
			if got := ev.Excitement(); got != tt.want {
				t.Errorf("Excitement() for %q = %d, want %d", tt.intensity, got, tt.want)
			}
		})
	}
}
