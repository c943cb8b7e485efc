// Package bridge coordinates the lifecycle of the rendering pipeline: it
// owns the engine and device handles, sequences startup of the capture
// goroutine and the pacing loop, and drives cooperative shutdown.
package bridge

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/midisynthd/midisynthd/internal/audioout"
	"github.com/midisynthd/midisynthd/internal/logging"
	"github.com/midisynthd/midisynthd/internal/midistream"
	"github.com/midisynthd/midisynthd/internal/synth"
	"github.com/midisynthd/midisynthd/internal/telemetry"
)

// Lifecycle states. The capture loop is only permitted past its
// initialization barrier in StateRunning and stops processing events once
// the flag leaves it.
const (
	StateNotStarted int32 = iota
	StateRunning
	StateStopping
)

// Config assembles a pipeline. Source, Engine and Device handles are owned
// by the bridge from this point on and released during shutdown.
type Config struct {
	Source  midistream.EventSource
	Engine  synth.Engine
	Device  audioout.OutputDevice
	Pool    *audioout.StagingPool
	Metrics *telemetry.Metrics

	IdleThreshold time.Duration
	TickInterval  time.Duration

	// Dump optionally taps the encoded command stream.
	Dump io.Writer
}

// Bridge is one rendering pipeline instance. All shared state lives here
// rather than at package scope, so multiple instances and tests stay
// independent.
type Bridge struct {
	cfg     Config
	channel *midistream.Channel
	state   atomic.Int32
	log     *slog.Logger
}

// New creates a pipeline around a fresh transfer channel.
func New(cfg Config) *Bridge {
	return &Bridge{
		cfg:     cfg,
		channel: midistream.NewChannel(midistream.DefaultCapacity),
		log:     logging.ForService("bridge"),
	}
}

// Channel exposes the transfer channel, mainly for tests and telemetry.
func (b *Bridge) Channel() *midistream.Channel {
	return b.channel
}

// State returns the current lifecycle state.
func (b *Bridge) State() int32 {
	return b.state.Load()
}

func (b *Bridge) stopping() bool {
	return b.state.Load() != StateRunning
}

// Run starts the capture goroutine, prefills the device buffer, then runs
// the pacing loop on the calling goroutine until ctx is cancelled.
// Shutdown stops new enqueues, unblocks and joins the capture goroutine,
// drains the remaining buffered bytes into the engine, and releases the
// device and engine handles in reverse start order.
func (b *Bridge) Run(ctx context.Context) error {
	b.state.Store(StateRunning)

	ready := make(chan struct{})
	initialized := make(chan struct{})
	captureDone := make(chan struct{})

	capture := midistream.NewCapture(midistream.CaptureConfig{
		Source:   b.cfg.Source,
		Channel:  b.channel,
		Metrics:  b.cfg.Metrics,
		Ready:    ready,
		Stopping: b.stopping,
		Dump:     b.cfg.Dump,
	})

	go func() {
		defer close(captureDone)
		capture.Run(initialized)
	}()

	// The capture goroutine blocks on the ready gate until the device and
	// engine are fully started below.
	<-initialized

	pacing := audioout.NewPacingLoop(audioout.PacingConfig{
		Channel:       b.channel,
		Engine:        b.cfg.Engine,
		Device:        b.cfg.Device,
		Pool:          b.cfg.Pool,
		Metrics:       b.cfg.Metrics,
		IdleThreshold: b.cfg.IdleThreshold,
		TickInterval:  b.cfg.TickInterval,
	})
	pacing.Prefill()

	close(ready)
	b.log.Info("pipeline running",
		"subbuffers", b.cfg.Pool.Count(),
		"period_frames", b.cfg.Pool.PeriodFrames())

	stopLoop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stopLoop)
	}()

	pacing.Run(stopLoop)

	return b.shutdown(captureDone)
}

// shutdown flips the lifecycle flag, unblocks the capture goroutine by
// closing its event source, waits for it, then drains what is left of the
// channel into the engine before releasing the handles.
func (b *Bridge) shutdown(captureDone <-chan struct{}) error {
	b.state.Store(StateStopping)

	if err := b.cfg.Source.Close(); err != nil {
		b.log.Warn("error closing event source", "error", err)
	}
	<-captureDone

	// No producer is left; hand the final buffered commands to the engine
	// so note-offs already captured are not lost.
	if _, err := b.channel.DequeueTo(b.cfg.Engine.WriteCommandBytes); err != nil {
		b.log.Warn("error draining transfer channel", "error", err)
	}
	b.channel.Reset()

	var firstErr error
	if err := b.cfg.Device.Close(); err != nil {
		b.log.Error("error closing output device", "error", err)
		firstErr = err
	}
	if err := b.cfg.Engine.Close(); err != nil {
		b.log.Error("error closing rendering engine", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	b.log.Info("pipeline stopped")
	return firstErr
}
