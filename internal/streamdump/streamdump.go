// Package streamdump records the encoded MIDI command stream into a ring
// buffer and flushes it to a file on shutdown, a diagnostic aid for
// inspecting exactly which bytes reached the rendering engine.
package streamdump

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/smallnest/ringbuffer"

	"github.com/midisynthd/midisynthd/internal/logging"
)

// DefaultCapacity keeps the most recent 256 KiB of command stream.
const DefaultCapacity = 256 * 1024

// Recorder is an io.Writer tap on the command stream. Writes never block
// and never fail; when the buffer fills, the oldest bytes are discarded
// so the recording always holds the most recent stream tail.
type Recorder struct {
	rb   *ringbuffer.RingBuffer
	path string
	log  *slog.Logger
}

// NewRecorder creates a recorder that flushes to path.
func NewRecorder(path string, capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		rb:   ringbuffer.New(capacity),
		path: path,
		log:  logging.ForService("streamdump"),
	}
}

// Write appends command bytes to the recording, discarding the oldest
// bytes on overflow. Implements io.Writer; the returned error is always nil.
func (r *Recorder) Write(p []byte) (int, error) {
	if len(p) > r.rb.Free() {
		// Age out enough of the recording to fit the new bytes.
		discard := make([]byte, len(p)-r.rb.Free())
		_, _ = r.rb.Read(discard)
	}
	_, _ = r.rb.Write(p)
	return len(p), nil
}

// Flush writes the recording to its file. Call after the capture path has
// stopped producing.
func (r *Recorder) Flush() error {
	length := r.rb.Length()
	data := make([]byte, length)
	if length > 0 {
		if _, err := r.rb.Read(data); err != nil {
			return fmt.Errorf("reading stream recording: %w", err)
		}
	}

	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("writing stream recording to %s: %w", r.path, err)
	}

	r.log.Info("command stream recording written", "path", r.path, "bytes", length)
	return nil
}
