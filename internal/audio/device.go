package audio

import (
	"fmt"
	"io"

	"github.com/ebitengine/oto/v3"
)

// Device owns the system audio output for the session. The underlying
// player pulls PCM from the mixer's Read on the audio subsystem's thread.
type Device struct {
	ctx    *oto.Context
	player *oto.Player
}

// OpenDevice initializes the system audio context at the given rate and
// attaches src as the stream source. Returns an error if the audio device
// is unavailable — the process treats that as fatal at startup.
func OpenDevice(sampleRate int, src io.Reader) (*Device, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	<-readyChan

	return &Device{
		ctx:    ctx,
		player: ctx.NewPlayer(src),
	}, nil
}

// Start begins pulling from the source.
func (d *Device) Start() {
	d.player.Play()
}

// Playing reports whether the output stream is running.
func (d *Device) Playing() bool {
	return d.player.IsPlaying()
}

// Close stops playback and releases the player.
func (d *Device) Close() error {
	return d.player.Close()
}
