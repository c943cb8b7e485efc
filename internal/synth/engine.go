// Package synth defines the boundary to the external sound rendering
// engine. The engine consumes the encoder's command byte stream in order
// and produces interleaved PCM frames on demand; its internals are not
// part of this daemon.
package synth

import "github.com/midisynthd/midisynthd/internal/errors"

// ErrShortRender reports an engine producing a frame count different from
// the requested period size, which the render loop treats as fatal for
// the affected slot.
var ErrShortRender = errors.NewStd("engine produced short render")

// Engine is the rendering engine contract. WriteCommandBytes accepts
// command stream bytes with no backpressure signal; Render must produce
// exactly frames frames of interleaved samples into dst.
type Engine interface {
	// WriteCommandBytes feeds command stream bytes to the engine,
	// order-preserving.
	WriteCommandBytes(p []byte) error

	// Render produces frames interleaved frames into dst and returns the
	// number of frames actually produced.
	Render(dst []byte, frames int) (int, error)

	// Close releases the engine.
	Close() error
}

// Config carries the engine parameters negotiated at startup.
type Config struct {
	SampleRate int
	Channels   int
	Options    map[string]int
}

// SilenceEngine is a built-in engine that swallows the command stream and
// renders digital silence. It exists so the pipeline can be wired and
// exercised without an external engine; it performs no synthesis.
type SilenceEngine struct {
	channels int
}

// NewSilenceEngine creates a silence engine for the given configuration.
func NewSilenceEngine(cfg Config) *SilenceEngine {
	return &SilenceEngine{channels: cfg.Channels}
}

func (e *SilenceEngine) WriteCommandBytes(p []byte) error {
	return nil
}

func (e *SilenceEngine) Render(dst []byte, frames int) (int, error) {
	frameBytes := e.channels * 2
	if max := len(dst) / frameBytes; frames > max {
		frames = max
	}
	clear(dst[:frames*frameBytes])
	return frames, nil
}

func (e *SilenceEngine) Close() error {
	return nil
}
