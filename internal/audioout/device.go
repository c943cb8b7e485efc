// Package audioout paces rendered audio periods out to a playback device.
// It owns the render staging pool and the fixed-interval loop that decides
// when to render, when to write, when to pause the hardware during
// silence, and how to recover from buffer underruns.
package audioout

import "github.com/midisynthd/midisynthd/internal/errors"

// DeviceState reports the coarse hardware buffer state.
type DeviceState int

const (
	StateUnknown DeviceState = iota
	StateRunning
	StatePaused
	StateUnderrun
)

// ErrPauseUnsupported is returned by Pause on devices without pause
// support. The pacing loop degrades to its timestamp-reset strategy.
var ErrPauseUnsupported = errors.NewStd("pause not supported by device")

// OutputDevice is the playback hardware boundary. Implementations are
// owned exclusively by the render loop goroutine.
type OutputDevice interface {
	// State reports the current hardware buffer state.
	State() DeviceState

	// AvailFrames returns the number of free frames in the device buffer.
	AvailFrames() int

	// Pause pauses or resumes playback. May return ErrPauseUnsupported.
	Pause(pause bool) error

	// WriteFrames writes interleaved frames and returns the number of
	// frames accepted, which may be fewer than offered.
	WriteFrames(p []byte) (int, error)

	// Prepare resets the device after an underrun.
	Prepare() error

	// Close releases the device.
	Close() error
}
