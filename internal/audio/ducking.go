package audio

// Ducking ramps the ambience gain between its nominal and ducked levels.
// Duck and Restore are edge-triggered; on each frame the current gain
// advances toward the target by at most one step, sized so a full ramp
// completes in rampMs at the configured sample rate. Convergence is
// monotonic: no overshoot, no oscillation.
//
// Only the mixer callback calls Step; Duck and Restore are invoked from
// the callback as well, so no synchronization is needed here.
type Ducking struct {
	current float64
	target  float64
	nominal float64
	ducked  float64
	step    float64
}

// NewDucking creates a controller starting at the nominal gain.
func NewDucking(nominal, ducked float64, rampMs, sampleRate int) *Ducking {
	rampFrames := float64(sampleRate) * float64(rampMs) / 1000.0
	if rampFrames < 1 {
		rampFrames = 1
	}
	return &Ducking{
		current: nominal,
		target:  nominal,
		nominal: nominal,
		ducked:  ducked,
		step:    (nominal - ducked) / rampFrames,
	}
}

// Duck sets the ducked gain as the ramp target. Idempotent.
func (d *Ducking) Duck() {
	d.target = d.ducked
}

// Restore sets the nominal gain as the ramp target. Idempotent.
func (d *Ducking) Restore() {
	d.target = d.nominal
}

// Step advances the current gain one frame toward the target and
// returns it.
func (d *Ducking) Step() float64 {
	switch {
	case d.current > d.target:
		d.current -= d.step
		if d.current < d.target {
			d.current = d.target
		}
	case d.current < d.target:
		d.current += d.step
		if d.current > d.target {
			d.current = d.target
		}
	}
	return d.current
}

// Gain returns the current gain without advancing the ramp.
func (d *Ducking) Gain() float64 {
	return d.current
}
