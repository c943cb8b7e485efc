// Package midistream translates structured MIDI performance events into a
// running-status compressed command byte stream and carries that stream
// across a lock-free single-producer single-consumer transfer channel to
// the rendering side of the pipeline.
package midistream

import "fmt"

// EventType identifies one variant of the closed performance event set.
type EventType int

const (
	EventNoteOn EventType = iota
	EventNoteOff
	EventKeyPressure
	EventController
	EventProgramChange
	EventChannelPressure
	EventPitchBend
	EventController14
	EventRegParam
	EventNonRegParam
	EventSysEx
	EventQuarterFrame
	EventSongPosition
	EventSongSelect
	EventTuneRequest
	EventClock
	EventTick
	EventStart
	EventContinue
	EventStop
	EventActiveSensing
	EventReset
	EventPortSubscribed
	EventPortUnsubscribed
)

var eventTypeNames = map[EventType]string{
	EventNoteOn:           "note-on",
	EventNoteOff:          "note-off",
	EventKeyPressure:      "key-pressure",
	EventController:       "controller",
	EventProgramChange:    "program-change",
	EventChannelPressure:  "channel-pressure",
	EventPitchBend:        "pitch-bend",
	EventController14:     "controller-14bit",
	EventRegParam:         "rpn",
	EventNonRegParam:      "nrpn",
	EventSysEx:            "sysex",
	EventQuarterFrame:     "quarter-frame",
	EventSongPosition:     "song-position",
	EventSongSelect:       "song-select",
	EventTuneRequest:      "tune-request",
	EventClock:            "clock",
	EventTick:             "tick",
	EventStart:            "start",
	EventContinue:         "continue",
	EventStop:             "stop",
	EventActiveSensing:    "active-sensing",
	EventReset:            "reset",
	EventPortSubscribed:   "port-subscribed",
	EventPortUnsubscribed: "port-unsubscribed",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// Event is one structured performance event from the external source.
// Which fields are meaningful depends on Type: note events use Note and
// Velocity, controller family events use Param and Value, sysex uses
// Payload, subscription notices use Client.
type Event struct {
	Type     EventType
	Channel  uint8
	Note     uint8
	Velocity uint8
	Param    int
	Value    int
	Payload  []byte
	Client   string
}

// EventSource supplies performance events from the outside world. Receive
// blocks until an event arrives or the source is closed; Close unblocks a
// pending Receive so the capture loop can observe shutdown.
type EventSource interface {
	Receive() (*Event, error)
	Close() error
}
