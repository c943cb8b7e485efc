package midistream

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource delivers scripted events and supports closing like a real
// event source handle.
type fakeSource struct {
	events chan *Event
	closed atomic.Bool
}

func newFakeSource(buffer int) *fakeSource {
	return &fakeSource{events: make(chan *Event, buffer)}
}

func (s *fakeSource) Receive() (*Event, error) {
	ev, ok := <-s.events
	if !ok {
		return nil, ErrSourceClosed
	}
	return ev, nil
}

func (s *fakeSource) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.events)
	}
	return nil
}

func runCapture(t *testing.T, cfg CaptureConfig) chan struct{} {
	t.Helper()
	done := make(chan struct{})
	initialized := make(chan struct{})
	capture := NewCapture(cfg)
	go func() {
		defer close(done)
		capture.Run(initialized)
	}()
	select {
	case <-initialized:
	case <-time.After(time.Second):
		t.Fatal("capture loop did not signal initialization")
	}
	return done
}

func TestCaptureEncodesAndEnqueues(t *testing.T) {
	source := newFakeSource(4)
	channel := NewChannel(256)
	ready := make(chan struct{})
	var stopping atomic.Bool

	source.events <- &Event{Type: EventNoteOn, Channel: 0, Note: 60, Velocity: 100}
	source.events <- &Event{Type: EventNoteOn, Channel: 0, Note: 64, Velocity: 90}

	done := runCapture(t, CaptureConfig{
		Source:   source,
		Channel:  channel,
		Ready:    ready,
		Stopping: stopping.Load,
	})

	close(ready)

	require.Eventually(t, func() bool { return channel.Len() == 5 },
		time.Second, time.Millisecond)

	assert.Equal(t, []byte{0x90, 60, 100, 64, 90}, drain(t, channel))

	stopping.Store(true)
	require.NoError(t, source.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("capture loop did not stop")
	}
}

func TestCaptureWaitsForReadyGate(t *testing.T) {
	source := newFakeSource(1)
	channel := NewChannel(256)
	ready := make(chan struct{})
	var stopping atomic.Bool

	source.events <- &Event{Type: EventNoteOn, Channel: 0, Note: 60, Velocity: 100}

	done := runCapture(t, CaptureConfig{
		Source:   source,
		Channel:  channel,
		Ready:    ready,
		Stopping: stopping.Load,
	})

	// Nothing may be decoded before the coordinator signals readiness.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, channel.Len())

	close(ready)
	require.Eventually(t, func() bool { return channel.Len() == 3 },
		time.Second, time.Millisecond)

	require.NoError(t, source.Close())
	<-done
}

func TestCaptureStopsOnSourceClose(t *testing.T) {
	source := newFakeSource(1)
	channel := NewChannel(256)
	ready := make(chan struct{})
	close(ready)
	var stopping atomic.Bool

	done := runCapture(t, CaptureConfig{
		Source:   source,
		Channel:  channel,
		Ready:    ready,
		Stopping: stopping.Load,
	})

	require.NoError(t, source.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("capture loop did not stop on source close")
	}
}

func TestCaptureDiscardsEventsAfterStop(t *testing.T) {
	source := newFakeSource(1)
	channel := NewChannel(256)
	ready := make(chan struct{})
	close(ready)
	var stopping atomic.Bool

	done := runCapture(t, CaptureConfig{
		Source:   source,
		Channel:  channel,
		Ready:    ready,
		Stopping: stopping.Load,
	})

	// The loop is blocked in Receive. Flip the lifecycle flag first, then
	// deliver an event: it must be discarded undecoded.
	stopping.Store(true)
	source.events <- &Event{Type: EventNoteOn, Channel: 0, Note: 60, Velocity: 100}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("capture loop did not stop")
	}
	assert.Zero(t, channel.Len(), "post-stop events must not be encoded")

	require.NoError(t, source.Close())
}

func TestCaptureRaisesNotifyFlag(t *testing.T) {
	source := newFakeSource(1)
	channel := NewChannel(256)
	ready := make(chan struct{})
	close(ready)
	var stopping atomic.Bool

	source.events <- &Event{Type: EventNoteOn, Channel: 0, Note: 60, Velocity: 100}

	done := runCapture(t, CaptureConfig{
		Source:   source,
		Channel:  channel,
		Ready:    ready,
		Stopping: stopping.Load,
	})

	require.Eventually(t, channel.TakeNotice, time.Second, time.Millisecond)

	require.NoError(t, source.Close())
	<-done
}

func TestCaptureDumpsEncodedStream(t *testing.T) {
	source := newFakeSource(2)
	channel := NewChannel(256)
	ready := make(chan struct{})
	close(ready)
	var stopping atomic.Bool
	var dump bytes.Buffer

	source.events <- &Event{Type: EventNoteOn, Channel: 0, Note: 60, Velocity: 100}

	done := runCapture(t, CaptureConfig{
		Source:   source,
		Channel:  channel,
		Ready:    ready,
		Stopping: stopping.Load,
		Dump:     &dump,
	})

	require.Eventually(t, func() bool { return dump.Len() == 3 },
		time.Second, time.Millisecond)
	assert.Equal(t, []byte{0x90, 60, 100}, dump.Bytes())

	require.NoError(t, source.Close())
	<-done
}

func TestCaptureSubscriptionEventsProduceNoBytes(t *testing.T) {
	source := newFakeSource(2)
	channel := NewChannel(256)
	ready := make(chan struct{})
	close(ready)
	var stopping atomic.Bool

	source.events <- &Event{Type: EventPortSubscribed, Client: "Test Client"}
	source.events <- &Event{Type: EventNoteOn, Channel: 0, Note: 60, Velocity: 100}

	done := runCapture(t, CaptureConfig{
		Source:   source,
		Channel:  channel,
		Ready:    ready,
		Stopping: stopping.Load,
	})

	require.Eventually(t, func() bool { return channel.Len() == 3 },
		time.Second, time.Millisecond)
	assert.Equal(t, []byte{0x90, 60, 100}, drain(t, channel))

	require.NoError(t, source.Close())
	<-done
}
