package midistream

import (
	"io"
	"log/slog"
	"runtime"

	"github.com/midisynthd/midisynthd/internal/errors"
	"github.com/midisynthd/midisynthd/internal/logging"
	"github.com/midisynthd/midisynthd/internal/telemetry"
)

// ErrSourceClosed is returned by an EventSource whose underlying handle
// has been closed, the cooperative way to unblock a pending Receive.
var ErrSourceClosed = errors.NewStd("event source closed")

// CaptureConfig wires a capture loop to its collaborators.
type CaptureConfig struct {
	Source  EventSource
	Channel *Channel
	Metrics *telemetry.Metrics

	// Ready is closed by the lifecycle coordinator once the output device
	// and rendering engine are fully started. The loop does not decode
	// events before then.
	Ready <-chan struct{}

	// Stopping reports whether the lifecycle flag has left the running
	// state. Events received after that are discarded undecoded.
	Stopping func() bool

	// Dump optionally receives a copy of every enqueued command byte.
	Dump io.Writer
}

// Capture runs on a dedicated goroutine, blocking on the event source and
// feeding the encoder and transfer channel.
type Capture struct {
	cfg CaptureConfig
	enc *Encoder
	log *slog.Logger
}

// NewCapture creates a capture loop with a fresh encoder.
func NewCapture(cfg CaptureConfig) *Capture {
	return &Capture{
		cfg: cfg,
		enc: NewEncoder(),
		log: logging.ForService("midi-capture"),
	}
}

// Run executes the capture loop until shutdown. It closes initialized
// once the goroutine is up, then blocks on the Ready gate before
// processing any event. Run returns when Stopping reports true or the
// source reports closure.
func (c *Capture) Run(initialized chan<- struct{}) {
	// The capture path wants the lowest event latency the runtime can
	// give; pinning the goroutine to its OS thread keeps the blocking
	// source wait off the shared scheduler threads. A real-time
	// scheduling class is not portably available, so this is best effort.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	close(initialized)
	<-c.cfg.Ready

	c.enc.Reset()

	for {
		if c.cfg.Stopping() {
			return
		}

		ev, err := c.cfg.Source.Receive()
		if err != nil {
			if errors.Is(err, ErrSourceClosed) || c.cfg.Stopping() {
				return
			}
			c.log.Warn("event source receive failed", "error", err)
			continue
		}

		if c.cfg.Stopping() {
			// Discard without decoding.
			return
		}

		c.process(ev)
	}
}

func (c *Capture) process(ev *Event) {
	switch ev.Type {
	case EventPortSubscribed:
		c.log.Info("client subscribed", "client", ev.Client)
		return
	case EventPortUnsubscribed:
		c.log.Info("client unsubscribed", "client", ev.Client)
		return
	}

	c.cfg.Metrics.RecordEventCaptured()

	encoded := c.enc.Encode(ev)
	if len(encoded) == 0 {
		return
	}

	if err := c.cfg.Channel.Enqueue(encoded); err != nil {
		c.cfg.Metrics.RecordEventDropped()
		c.log.Error("event buffer overflow, event dropped",
			"type", ev.Type.String(), "bytes", len(encoded), "free", c.cfg.Channel.Free())
		return
	}

	c.cfg.Metrics.RecordBytesEncoded(len(encoded))

	if c.cfg.Dump != nil {
		// Best effort; the tap must never disturb the capture path.
		_, _ = c.cfg.Dump.Write(encoded)
	}
}
