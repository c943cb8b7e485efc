package midistream

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/midisynthd/midisynthd/internal/errors"
	"github.com/midisynthd/midisynthd/internal/logging"
)

// eventQueueDepth buffers between the driver callback and the capture
// loop; the capture loop drains far faster than any MIDI wire delivers.
const eventQueueDepth = 256

// RTMIDISource is an EventSource backed by an rtmidi input port. The
// driver delivers messages on its own callback thread; they are queued
// and handed to the capture loop through Receive. The events channel is
// never closed: the callback thread may still be delivering when Close
// runs, so shutdown is signalled through done instead.
type RTMIDISource struct {
	drv    *rtmididrv.Driver
	in     drivers.In
	stop   func()
	events chan *Event
	done   chan struct{}
	once   sync.Once
	log    *slog.Logger
}

// ListInputPorts returns the names of all available MIDI input ports.
func ListInputPorts() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	defer drv.Close()

	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("listing MIDI inputs: %w", err)
	}

	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names, nil
}

// NewRTMIDISource opens the first MIDI input port whose name contains
// portMatch (case-insensitive); an empty portMatch selects the first
// available port.
func NewRTMIDISource(portMatch string) (*RTMIDISource, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, errors.New(fmt.Errorf("rtmididrv: %w", err)).
			Category(errors.CategoryMIDICapture).
			Component("rtmidi-source").
			Build()
	}

	s := &RTMIDISource{
		drv:    drv,
		events: make(chan *Event, eventQueueDepth),
		done:   make(chan struct{}),
		log:    logging.ForService("rtmidi-source"),
	}

	if err := s.open(portMatch); err != nil {
		_ = drv.Close()
		return nil, err
	}
	return s, nil
}

func (s *RTMIDISource) open(portMatch string) error {
	ins, err := s.drv.Ins()
	if err != nil {
		return fmt.Errorf("listing MIDI inputs: %w", err)
	}

	var found drivers.In
	for _, in := range ins {
		if portMatch == "" || strings.Contains(strings.ToLower(in.String()), strings.ToLower(portMatch)) {
			found = in
			break
		}
	}
	if found == nil {
		return errors.Newf("no MIDI input port matching %q", portMatch).
			Category(errors.CategoryMIDICapture).
			Component("rtmidi-source").
			Context("ports_available", len(ins)).
			Build()
	}

	if err := found.Open(); err != nil {
		return fmt.Errorf("opening MIDI input %q: %w", found.String(), err)
	}

	stop, err := midi.ListenTo(found, s.onMessage, midi.UseSysEx(),
		midi.HandleError(func(listenErr error) {
			s.log.Warn("MIDI listener error", "port", found.String(), "error", listenErr)
		}))
	if err != nil {
		_ = found.Close()
		return fmt.Errorf("listening on MIDI input %q: %w", found.String(), err)
	}

	s.in = found
	s.stop = stop
	s.log.Info("MIDI input connected", "port", found.String())
	return nil
}

// PortName returns the connected input port name.
func (s *RTMIDISource) PortName() string {
	if s.in == nil {
		return ""
	}
	return s.in.String()
}

// Receive blocks until the next event arrives or the source is closed.
func (s *RTMIDISource) Receive() (*Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		return nil, ErrSourceClosed
	}
}

// Close stops the listener and releases the port and driver, unblocking a
// pending Receive.
func (s *RTMIDISource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.stop != nil {
			s.stop()
		}
		if s.in != nil {
			err = s.in.Close()
		}
		if s.drv != nil {
			if cerr := s.drv.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}

func (s *RTMIDISource) onMessage(msg midi.Message, _ int32) {
	ev := translateMessage(msg)
	if ev == nil {
		s.log.Debug("unhandled MIDI message", "msg", msg.String())
		return
	}

	select {
	case <-s.done:
		// Late delivery from the callback thread after Close.
		return
	default:
	}
	select {
	case s.events <- ev:
	default:
		// The capture loop has stalled; dropping here mirrors the channel
		// overflow policy one stage later.
		s.log.Error("event queue overflow, event dropped", "type", ev.Type.String())
	}
}

// translateMessage maps a wire message onto the closed event set. Returns
// nil for messages outside the set.
func translateMessage(msg midi.Message) *Event {
	var (
		ch, key, vel, pressure, cc, val, prog uint8
		mtc, song                             uint8
		rel                                   int16
		abs, spp                              uint16
		payload                               []byte
	)

	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return &Event{Type: EventNoteOn, Channel: ch, Note: key, Velocity: vel}
	case msg.GetNoteEnd(&ch, &key):
		return &Event{Type: EventNoteOff, Channel: ch, Note: key}
	case msg.GetPolyAfterTouch(&ch, &key, &pressure):
		return &Event{Type: EventKeyPressure, Channel: ch, Note: key, Velocity: pressure}
	case msg.GetControlChange(&ch, &cc, &val):
		return &Event{Type: EventController, Channel: ch, Param: int(cc), Value: int(val)}
	case msg.GetProgramChange(&ch, &prog):
		return &Event{Type: EventProgramChange, Channel: ch, Value: int(prog)}
	case msg.GetAfterTouch(&ch, &pressure):
		return &Event{Type: EventChannelPressure, Channel: ch, Value: int(pressure)}
	case msg.GetPitchBend(&ch, &rel, &abs):
		return &Event{Type: EventPitchBend, Channel: ch, Value: int(rel)}
	case msg.GetSysEx(&payload):
		return &Event{Type: EventSysEx, Payload: payload}
	case msg.GetMTC(&mtc):
		return &Event{Type: EventQuarterFrame, Value: int(mtc)}
	case msg.GetSPP(&spp):
		return &Event{Type: EventSongPosition, Value: int(spp)}
	case msg.GetSongSelect(&song):
		return &Event{Type: EventSongSelect, Value: int(song)}
	case msg.Is(midi.TimingClockMsg):
		return &Event{Type: EventClock}
	case msg.Is(midi.TickMsg):
		return &Event{Type: EventTick}
	case msg.Is(midi.StartMsg):
		return &Event{Type: EventStart}
	case msg.Is(midi.ContinueMsg):
		return &Event{Type: EventContinue}
	case msg.Is(midi.StopMsg):
		return &Event{Type: EventStop}
	case msg.Is(midi.ActiveSenseMsg):
		return &Event{Type: EventActiveSensing}
	case msg.Is(midi.ResetMsg):
		return &Event{Type: EventReset}
	case msg.Is(midi.TuneMsg):
		return &Event{Type: EventTuneRequest}
	default:
		return nil
	}
}
