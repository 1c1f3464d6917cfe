package audio

// Ambience is the continuously looping background bed. The asset is
// decoded once at process start and looped by pointer wrap-around; the
// file is never reopened or rewound on event boundaries. Only the mixer
// callback touches the read position.
type Ambience struct {
	samples []int16
	pos     int
}

// NewAmbience wraps decoded mono PCM16 samples. An empty slice yields a
// silent ambience channel (the engine still runs).
func NewAmbience(samples []int16) *Ambience {
	return &Ambience{samples: samples}
}

// LoadAmbience decodes the ambience asset at path. On any error the
// returned ambience is silent and the error is surfaced for logging.
func LoadAmbience(path string, sampleRate int) (*Ambience, error) {
	samples, err := LoadWAVFile(path, sampleRate)
	if err != nil {
		return NewAmbience(nil), err
	}
	return NewAmbience(samples), nil
}

// Silent reports whether the ambience channel has no source material.
func (a *Ambience) Silent() bool {
	return len(a.samples) == 0
}

// ReadFrames fills dst with the next mono frames, wrapping at the end of
// the decoded buffer so the loop never gaps.
func (a *Ambience) ReadFrames(dst []int16) {
	if len(a.samples) == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	for i := range dst {
		dst[i] = a.samples[a.pos]
		a.pos++
		if a.pos >= len(a.samples) {
			a.pos = 0
		}
	}
}
