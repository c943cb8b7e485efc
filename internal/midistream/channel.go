package midistream

import (
	"sync/atomic"

	"github.com/midisynthd/midisynthd/internal/errors"
)

// DefaultCapacity is the transfer channel size used by the pipeline.
const DefaultCapacity = 65536

// ErrChannelFull is returned by Enqueue when the encoded event does not
// fit in the channel's free space. The payload is discarded whole.
var ErrChannelFull = errors.NewStd("transfer channel full")

// Channel is a fixed-capacity single-producer single-consumer circular
// byte buffer. The producer owns the write index, the consumer owns the
// read index, and each index is only ever stored by its owner; atomic
// loads and stores give the cross-thread visibility and ordering the
// single-writer discipline relies on. At most capacity-1 bytes are
// occupied at once, sacrificing one slot to distinguish full from empty.
//
// The notify flag rides alongside: the producer raises it after a
// successful enqueue and the consumer takes it on its next tick. A lost
// wake-up only delays a pause/unpause decision by one tick.
type Channel struct {
	buf        []byte
	mask       uint32
	writeIndex atomic.Uint32 // stored by producer only
	readIndex  atomic.Uint32 // stored by consumer only
	notify     atomic.Bool
	overflows  atomic.Uint64
}

// NewChannel creates a channel with the given capacity, which must be a
// power of two.
func NewChannel(capacity int) *Channel {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("midistream: channel capacity must be a power of two")
	}
	return &Channel{
		buf:  make([]byte, capacity),
		mask: uint32(capacity - 1),
	}
}

// Capacity returns the channel's byte capacity.
func (c *Channel) Capacity() int {
	return len(c.buf)
}

// Len returns the number of occupied bytes.
func (c *Channel) Len() int {
	w := c.writeIndex.Load()
	r := c.readIndex.Load()
	return int((w - r) & c.mask)
}

// Free returns the number of bytes Enqueue can currently accept.
func (c *Channel) Free() int {
	return len(c.buf) - 1 - c.Len()
}

// Overflows returns the number of payloads dropped due to insufficient space.
func (c *Channel) Overflows() uint64 {
	return c.overflows.Load()
}

// Enqueue appends the whole payload, wrapping at the capacity boundary,
// or drops it entirely when it does not fit. Partial writes never happen.
// Producer side only.
func (c *Channel) Enqueue(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	w := c.writeIndex.Load()
	r := c.readIndex.Load()
	free := len(c.buf) - 1 - int((w-r)&c.mask)

	if len(p) > free {
		c.overflows.Add(1)
		return ErrChannelFull
	}

	n := copy(c.buf[w:], p)
	if n < len(p) {
		copy(c.buf, p[n:])
	}

	// Publish the data before the index moves; the atomic store orders
	// the copies above ahead of the consumer's index load.
	c.writeIndex.Store((w + uint32(len(p))) & c.mask)

	c.notify.Store(true)
	return nil
}

// DequeueTo forwards everything between the read index and the current
// write index snapshot to sink, in up to two contiguous spans, then
// advances the read index to the snapshot. Consumer side only. The read
// index advances even when the sink reports an error; the commands are
// consumed either way because the sink offers no backpressure.
func (c *Channel) DequeueTo(sink func([]byte) error) (int, error) {
	w := c.writeIndex.Load()
	r := c.readIndex.Load()
	if r == w {
		return 0, nil
	}

	var total int
	var err error
	if r < w {
		total = int(w - r)
		err = sink(c.buf[r:w])
	} else {
		total = int(uint32(len(c.buf)) - r + w)
		err = sink(c.buf[r:])
		if e := sink(c.buf[:w]); err == nil {
			err = e
		}
	}

	c.readIndex.Store(w)
	return total, err
}

// TakeNotice consumes the new-data notification flag. Consumer side only.
func (c *Channel) TakeNotice() bool {
	return c.notify.Swap(false)
}

// Reset discards buffered bytes and clears the notification flag. Only
// safe while neither thread is running, i.e. during startup or after
// shutdown has stopped new enqueues.
func (c *Channel) Reset() {
	c.writeIndex.Store(0)
	c.readIndex.Store(0)
	c.notify.Store(false)
}
