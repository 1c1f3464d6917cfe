package audio

import (
	"testing"
)

func TestDucking_RampDownMonotonic(t *testing.T) {
	// 200ms ramp at 22050 Hz
	d := NewDucking(0.30, 0.08, 200, 22050)
	d.Duck()

	prev := d.Gain()
	rampFrames := 22050 * 200 / 1000
	for i := 0; i < rampFrames+10; i++ {
		g := d.Step()
		if g > prev {
			t.Fatalf("gain increased during duck ramp at frame %d: %f -> %f", i, prev, g)
		}
		if g < 0.08 {
			t.Fatalf("gain overshot ducked level at frame %d: %f", i, g)
		}
		prev = g
	}

	if prev != 0.08 {
		t.Errorf("Expected gain to reach 0.08 within ramp, got %f", prev)
	}
}

func TestDucking_RampCompletesWithinOneBlockSlack(t *testing.T) {
	d := NewDucking(0.30, 0.08, 200, 22050)
	d.Duck()

	// One block of slack on top of the nominal ramp length
	rampFrames := 22050 * 200 / 1000
	block := 1024
	for i := 0; i < rampFrames+block; i++ {
		d.Step()
	}
	if d.Gain() != 0.08 {
		t.Errorf("Expected ramp complete within %d frames, gain=%f", rampFrames+block, d.Gain())
	}
}

func TestDucking_RestoreMonotonic(t *testing.T) {
	d := NewDucking(0.30, 0.08, 200, 22050)
	d.Duck()
	for i := 0; i < 22050; i++ {
		d.Step()
	}

	d.Restore()
	prev := d.Gain()
	for i := 0; i < 22050; i++ {
		g := d.Step()
		if g < prev {
			t.Fatalf("gain decreased during restore ramp: %f -> %f", prev, g)
		}
		if g > 0.30 {
			t.Fatalf("gain overshot nominal level: %f", g)
		}
		prev = g
	}
	if prev != 0.30 {
		t.Errorf("Expected gain restored to 0.30, got %f", prev)
	}
}

func TestDucking_Idempotent(t *testing.T) {
	d := NewDucking(0.30, 0.08, 200, 22050)
	d.Duck()
	for i := 0; i < 100; i++ {
		d.Step()
	}
	mid := d.Gain()

	// Repeated Duck() must not reset or disturb the ramp
	d.Duck()
	if d.Gain() != mid {
		t.Errorf("Duck() disturbed the ramp: %f -> %f", mid, d.Gain())
	}
	if g := d.Step(); g >= mid {
		t.Errorf("ramp stalled after repeated Duck(): %f", g)
	}
}

func TestDucking_SteadyStateStable(t *testing.T) {
	d := NewDucking(0.30, 0.08, 200, 22050)
	for i := 0; i < 1000; i++ {
		if g := d.Step(); g != 0.30 {
			t.Fatalf("gain drifted with no duck requested: %f", g)
		}
	}
}
