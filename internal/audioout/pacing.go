package audioout

import (
	"log/slog"
	"time"

	"github.com/midisynthd/midisynthd/internal/errors"
	"github.com/midisynthd/midisynthd/internal/logging"
	"github.com/midisynthd/midisynthd/internal/midistream"
	"github.com/midisynthd/midisynthd/internal/synth"
	"github.com/midisynthd/midisynthd/internal/telemetry"
)

const defaultTickInterval = 10 * time.Millisecond

// renderAheadPeriods is the device buffer margin: rendering proceeds only
// while at least this many periods of free space remain, so the loop never
// pre-renders unboundedly far ahead of the hardware.
const renderAheadPeriods = 3

// PacingConfig wires a pacing loop to its collaborators.
type PacingConfig struct {
	Channel *midistream.Channel
	Engine  synth.Engine
	Device  OutputDevice
	Pool    *StagingPool
	Metrics *telemetry.Metrics

	// IdleThreshold is the silence duration before playback is paused.
	IdleThreshold time.Duration

	// TickInterval overrides the 10 ms poll interval. Zero keeps the default.
	TickInterval time.Duration

	// Clock overrides the time source. Nil means time.Now.
	Clock func() time.Time
}

// PacingLoop drains the transfer channel into the rendering engine and
// paces rendered periods to the output device from a fixed-interval poll.
// It runs on the calling goroutine and owns the engine and device handles
// exclusively.
type PacingLoop struct {
	cfg          PacingConfig
	paused       bool
	lastActivity time.Time
	log          *slog.Logger
}

// NewPacingLoop creates a pacing loop.
func NewPacingLoop(cfg PacingConfig) *PacingLoop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &PacingLoop{
		cfg: cfg,
		log: logging.ForService("audio-pacing"),
	}
}

// Prefill renders and writes all but the first two subbuffers to build up
// the device buffer margin, then attempts an initial pause: silence before
// the first event is the common case. Called once before Run.
func (l *PacingLoop) Prefill() {
	period := l.cfg.Pool.PeriodFrames()
	for i := 2; i < l.cfg.Pool.Count(); i++ {
		slot := l.cfg.Pool.Slot(i)
		if err := l.renderInto(slot, period); err != nil {
			l.log.Error("error rendering audio data", "slot", i, "error", err)
		}
		if err := l.writeSlot(slot); err != nil {
			l.log.Error("error writing audio data", "slot", i, "error", err)
		}
	}

	if err := l.cfg.Device.Pause(true); err == nil {
		l.paused = true
		l.cfg.Metrics.RecordPause(true)
		l.log.Info("playback paused")
	} else {
		// Pausing does not work; note the time so the next attempt comes
		// after one full idle threshold.
		l.lastActivity = l.cfg.Clock()
	}
}

// Run executes the poll loop until stop is closed.
func (l *PacingLoop) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.tick(l.cfg.Clock())
		}
	}
}

// tick is one pass of the pacing state machine.
func (l *PacingLoop) tick(now time.Time) {
	if l.cfg.Channel.TakeNotice() {
		l.lastActivity = now
		if l.paused {
			if err := l.cfg.Device.Pause(false); err != nil {
				l.log.Warn("error unpausing playback", "error", err)
			}
			l.paused = false
			l.cfg.Metrics.RecordPause(false)
			l.log.Info("playback unpaused")
		}
	} else {
		if l.paused {
			return
		}
		if now.Sub(l.lastActivity) > l.cfg.IdleThreshold {
			if err := l.cfg.Device.Pause(true); err == nil {
				l.paused = true
				l.cfg.Metrics.RecordPause(true)
				l.log.Info("playback paused")
				return
			}
			// Retry after one more idle threshold.
			l.lastActivity = now
		}
	}

	if l.cfg.Device.State() == StateUnderrun {
		l.log.Warn("buffer underrun")
		l.cfg.Metrics.RecordUnderrun()
		if err := l.cfg.Device.Prepare(); err != nil {
			l.log.Error("error preparing device after underrun", "error", err)
		}
	}

	period := l.cfg.Pool.PeriodFrames()
	avail := l.cfg.Device.AvailFrames()
	for avail >= renderAheadPeriods*period {
		if err := l.renderCurrent(); err != nil {
			l.log.Error("error rendering audio data", "error", err)
			l.cfg.Metrics.RecordRenderError()
		}

		if err := l.writeSlot(l.cfg.Pool.CurrentSlot()); err != nil {
			// Abort this tick's output; the frame budget resets next tick.
			l.log.Error("error writing audio data", "error", err)
			break
		}
		avail -= period

		l.cfg.Pool.Advance()
		l.cfg.Metrics.RecordPeriodRendered()
	}
}

// renderCurrent drains the transfer channel into the engine and renders
// one period into the current pool slot.
func (l *PacingLoop) renderCurrent() error {
	if _, err := l.cfg.Channel.DequeueTo(l.cfg.Engine.WriteCommandBytes); err != nil {
		l.log.Warn("error forwarding command bytes", "error", err)
	}
	return l.renderInto(l.cfg.Pool.CurrentSlot(), l.cfg.Pool.PeriodFrames())
}

func (l *PacingLoop) renderInto(slot []byte, frames int) error {
	n, err := l.cfg.Engine.Render(slot, frames)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryRender).
			Component("audio-pacing").
			Build()
	}
	if n != frames {
		return errors.New(synth.ErrShortRender).
			Category(errors.CategoryRender).
			Component("audio-pacing").
			Context("requested", frames).
			Context("produced", n).
			Build()
	}
	return nil
}

// writeSlot writes one period to the device, retrying on partial writes
// until the whole period is consumed or the device reports an error.
func (l *PacingLoop) writeSlot(slot []byte) error {
	frameBytes := l.cfg.Pool.FrameBytes()
	for len(slot) > 0 {
		written, err := l.cfg.Device.WriteFrames(slot)
		if err != nil {
			return err
		}
		slot = slot[written*frameBytes:]
	}
	return nil
}
