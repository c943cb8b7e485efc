package midistream

import (
	"log/slog"

	"github.com/midisynthd/midisynthd/internal/logging"
)

// MIDI status nibbles for channel voice messages.
const (
	statusNoteOn          = 0x90
	statusController      = 0xB0
	statusProgramChange   = 0xC0
	statusChannelPressure = 0xD0
	statusPitchBend       = 0xE0
)

// Controller numbers used by the RPN message burst.
const (
	ccRPNMSB       = 0x65
	ccRPNLSB       = 0x64
	ccDataEntryMSB = 0x06
	ccDataEntryLSB = 0x26
)

// Encoder turns performance events into running-status compressed MIDI
// command bytes. It is owned by the capture loop and is not safe for
// concurrent use; the retained running status never crosses the channel.
type Encoder struct {
	running byte
	scratch [12]byte
	log     *slog.Logger
}

// NewEncoder returns an encoder with no retained running status.
func NewEncoder() *Encoder {
	return &Encoder{log: logging.ForService("midi-encoder")}
}

// Reset clears the retained running status. Called at each (re)start of
// the capture path.
func (e *Encoder) Reset() {
	e.running = 0
}

// Encode produces the command bytes for one event. The returned slice is
// valid until the next Encode call. Events the rendering engine does not
// consume produce nil; so do events dropped by policy (key pressure,
// NRPN, transport and realtime messages).
func (e *Encoder) Encode(ev *Event) []byte {
	switch ev.Type {
	case EventNoteOn:
		e.scratch[0] = statusNoteOn | ev.Channel
		e.scratch[1] = ev.Note
		e.scratch[2] = ev.Velocity
		return e.compress(3)

	case EventNoteOff:
		// Send note off as note on with zero velocity to increase the
		// chance of using running status.
		e.scratch[0] = statusNoteOn | ev.Channel
		e.scratch[1] = ev.Note
		e.scratch[2] = 0
		return e.compress(3)

	case EventController:
		e.scratch[0] = statusController | ev.Channel
		e.scratch[1] = byte(ev.Param)
		e.scratch[2] = byte(ev.Value)
		return e.compress(3)

	case EventProgramChange:
		e.scratch[0] = statusProgramChange | ev.Channel
		e.scratch[1] = byte(ev.Value)
		return e.compress(2)

	case EventChannelPressure:
		e.scratch[0] = statusChannelPressure | ev.Channel
		e.scratch[1] = byte(ev.Value)
		return e.compress(2)

	case EventPitchBend:
		biased := ev.Value + 0x2000
		e.scratch[0] = statusPitchBend | ev.Channel
		e.scratch[1] = byte(biased & 0x7f)
		e.scratch[2] = byte((biased >> 7) & 0x7f)
		return e.compress(3)

	case EventController14:
		// Only controllers 0-31 have a defined LSB pair at param+32.
		if ev.Param < 0 || ev.Param >= 32 {
			e.log.Debug("14-bit controller outside MSB range ignored",
				"channel", ev.Channel, "param", ev.Param, "value", ev.Value)
			return nil
		}
		e.scratch[0] = statusController | ev.Channel
		e.scratch[1] = byte(ev.Param)
		e.scratch[2] = byte((ev.Value >> 7) & 0x7f)
		e.scratch[3] = byte(ev.Param + 32)
		e.scratch[4] = byte(ev.Value & 0x7f)
		return e.compress(5)

	case EventRegParam:
		e.scratch[0] = statusController | ev.Channel
		e.scratch[1] = ccRPNMSB
		e.scratch[2] = byte((ev.Param >> 7) & 0x7f)
		e.scratch[3] = ccRPNLSB
		e.scratch[4] = byte(ev.Param & 0x7f)
		e.scratch[5] = ccDataEntryMSB
		e.scratch[6] = byte((ev.Value >> 7) & 0x7f)
		e.scratch[7] = ccDataEntryLSB
		e.scratch[8] = byte(ev.Value & 0x7f)
		return e.compress(9)

	case EventSysEx:
		// Raw sysex data is not a status-prefixed channel message; the
		// next message must re-assert its status byte explicitly.
		e.running = 0
		return ev.Payload

	case EventKeyPressure, EventNonRegParam,
		EventQuarterFrame, EventSongPosition, EventSongSelect, EventTuneRequest,
		EventClock, EventTick, EventStart, EventContinue, EventStop,
		EventActiveSensing, EventReset:
		// Recognized but not consumed by the rendering engine.
		return nil

	case EventPortSubscribed, EventPortUnsubscribed:
		// Handled by the capture loop, never encoded.
		return nil

	default:
		e.log.Warn("unhandled event type", "type", int(ev.Type))
		return nil
	}
}

// compress applies running-status compression to the channel message held
// in scratch: the status byte is emitted only when it differs from the
// retained running status.
func (e *Encoder) compress(length int) []byte {
	if e.scratch[0] != e.running {
		e.running = e.scratch[0]
		return e.scratch[:length]
	}
	return e.scratch[1:length]
}
