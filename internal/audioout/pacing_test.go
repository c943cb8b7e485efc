package audioout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midisynthd/midisynthd/internal/midistream"
	"github.com/midisynthd/midisynthd/internal/synth"
)

// fakeDevice records the pacing loop's interactions with the output device.
type fakeDevice struct {
	state       DeviceState
	avail       int
	paused      bool
	pauseErr    error
	writeErr    error
	partial     int // if > 0, WriteFrames consumes at most this many frames
	frameBytes  int
	written     []byte
	pauseCalls  []bool
	prepares    int
	writeCalls  int
}

func (d *fakeDevice) State() DeviceState { return d.state }

func (d *fakeDevice) AvailFrames() int { return d.avail }

func (d *fakeDevice) Pause(pause bool) error {
	d.pauseCalls = append(d.pauseCalls, pause)
	if d.pauseErr != nil {
		return d.pauseErr
	}
	d.paused = pause
	return nil
}

func (d *fakeDevice) WriteFrames(data []byte) (int, error) {
	d.writeCalls++
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	frames := len(data) / d.frameBytes
	if d.partial > 0 && frames > d.partial {
		frames = d.partial
	}
	d.written = append(d.written, data[:frames*d.frameBytes]...)
	return frames, nil
}

func (d *fakeDevice) Prepare() error {
	d.prepares++
	d.state = StateRunning
	return nil
}

func (d *fakeDevice) Close() error { return nil }

// countEngine renders a constant byte pattern and counts calls.
type countEngine struct {
	renders   int
	commands  []byte
	renderErr error
	short     bool
}

func (e *countEngine) WriteCommandBytes(p []byte) error {
	e.commands = append(e.commands, p...)
	return nil
}

func (e *countEngine) Render(dst []byte, frames int) (int, error) {
	e.renders++
	if e.renderErr != nil {
		return 0, e.renderErr
	}
	for i := range dst {
		dst[i] = 0x55
	}
	if e.short {
		return frames / 2, nil
	}
	return frames, nil
}

func (e *countEngine) Close() error { return nil }

type pacingFixture struct {
	channel *midistream.Channel
	engine  *countEngine
	device  *fakeDevice
	pool    *StagingPool
	loop    *PacingLoop
	now     time.Time
}

func newPacingFixture(t *testing.T, idle time.Duration) *pacingFixture {
	t.Helper()
	pool, err := NewStagingPool(11025, 512, 2, 4096)
	require.NoError(t, err)

	f := &pacingFixture{
		channel: midistream.NewChannel(256),
		engine:  &countEngine{},
		device:  &fakeDevice{frameBytes: pool.FrameBytes(), state: StateRunning},
		pool:    pool,
		now:     time.Unix(1000, 0),
	}
	f.loop = NewPacingLoop(PacingConfig{
		Channel:       f.channel,
		Engine:        f.engine,
		Device:        f.device,
		Pool:          pool,
		IdleThreshold: idle,
		Clock:         func() time.Time { return f.now },
	})
	return f
}

func (f *pacingFixture) tick(t *testing.T, advance time.Duration) {
	t.Helper()
	f.now = f.now.Add(advance)
	f.loop.tick(f.now)
}

func TestPrefillWritesAllButTwoSlots(t *testing.T) {
	f := newPacingFixture(t, time.Minute)
	f.loop.Prefill()

	periodBytes := f.pool.PeriodFrames() * f.pool.FrameBytes()
	assert.Len(t, f.device.written, (f.pool.Count()-2)*periodBytes)
	assert.Equal(t, f.pool.Count()-2, f.engine.renders)
	assert.Equal(t, []bool{true}, f.device.pauseCalls, "playback starts paused")
	assert.True(t, f.device.paused)
}

func TestPrefillPauseFailureDefersRetry(t *testing.T) {
	f := newPacingFixture(t, time.Minute)
	f.device.pauseErr = ErrPauseUnsupported
	f.loop.Prefill()

	require.Equal(t, []bool{true}, f.device.pauseCalls)
	f.device.pauseCalls = nil

	// Within the idle threshold no further pause is attempted.
	f.device.avail = 0
	f.tick(t, 30*time.Second)
	assert.Empty(t, f.device.pauseCalls)

	// Past the threshold the pause is retried, fails again, and the
	// next retry waits another full threshold.
	f.tick(t, 31*time.Second)
	assert.Equal(t, []bool{true}, f.device.pauseCalls)
	f.tick(t, 30*time.Second)
	assert.Equal(t, []bool{true}, f.device.pauseCalls)
	f.tick(t, 31*time.Second)
	assert.Equal(t, []bool{true, true}, f.device.pauseCalls)
}

func TestTickUnpausesOnActivity(t *testing.T) {
	f := newPacingFixture(t, time.Minute)
	f.loop.Prefill()
	require.True(t, f.device.paused)
	f.device.pauseCalls = nil

	require.NoError(t, f.channel.Enqueue([]byte{0x90, 60, 100}))
	f.device.avail = 0
	f.tick(t, time.Millisecond)

	assert.Equal(t, []bool{false}, f.device.pauseCalls)
	assert.False(t, f.device.paused)
}

func TestTickPausesExactlyOnceWhenIdle(t *testing.T) {
	f := newPacingFixture(t, time.Minute)
	f.device.avail = 0
	f.loop.lastActivity = f.now

	// Active and quiet, but within the threshold.
	f.tick(t, 30*time.Second)
	assert.Empty(t, f.device.pauseCalls)

	f.tick(t, 31*time.Second)
	assert.Equal(t, []bool{true}, f.device.pauseCalls)
	assert.True(t, f.device.paused)

	// Paused ticks are no-ops until activity resumes.
	f.tick(t, time.Hour)
	f.tick(t, time.Hour)
	assert.Equal(t, []bool{true}, f.device.pauseCalls)
}

func TestTickDrainsCommandsIntoEngine(t *testing.T) {
	f := newPacingFixture(t, time.Minute)
	f.device.avail = renderAheadPeriods * f.pool.PeriodFrames()

	require.NoError(t, f.channel.Enqueue([]byte{0x90, 60, 100}))
	f.tick(t, time.Millisecond)

	assert.Equal(t, []byte{0x90, 60, 100}, f.engine.commands)
	assert.Equal(t, 1, f.engine.renders)
	assert.Zero(t, f.channel.Len())
}

func TestTickRendersWhileMarginAvailable(t *testing.T) {
	f := newPacingFixture(t, time.Minute)
	f.loop.lastActivity = f.now
	period := f.pool.PeriodFrames()

	// Five periods of space: only three writes fit before the margin
	// condition stops the loop (5p, 4p, 3p are >= 3p; 2p is not).
	f.device.avail = 5 * period
	f.tick(t, time.Millisecond)

	periodBytes := period * f.pool.FrameBytes()
	assert.Len(t, f.device.written, 3*periodBytes)
	assert.Equal(t, 3, f.engine.renders)

	// No space, no rendering.
	f.device.written = nil
	f.device.avail = renderAheadPeriods*period - 1
	f.tick(t, time.Millisecond)
	assert.Empty(t, f.device.written)
}

func TestTickUnderrunReprepares(t *testing.T) {
	f := newPacingFixture(t, time.Minute)
	f.loop.lastActivity = f.now
	f.device.state = StateUnderrun
	f.device.avail = 0

	f.tick(t, time.Millisecond)
	assert.Equal(t, 1, f.device.prepares)
	assert.Equal(t, StateRunning, f.device.state)
}

func TestTickRenderErrorStillWritesSlot(t *testing.T) {
	f := newPacingFixture(t, time.Minute)
	f.loop.lastActivity = f.now
	f.engine.renderErr = assert.AnError
	f.device.avail = renderAheadPeriods * f.pool.PeriodFrames()

	f.tick(t, time.Millisecond)

	periodBytes := f.pool.PeriodFrames() * f.pool.FrameBytes()
	assert.Len(t, f.device.written, periodBytes, "slot is written even when rendering fails")
}

func TestTickShortRenderTreatedAsError(t *testing.T) {
	f := newPacingFixture(t, time.Minute)
	f.loop.lastActivity = f.now
	f.engine.short = true
	f.device.avail = renderAheadPeriods * f.pool.PeriodFrames()

	f.tick(t, time.Millisecond)

	periodBytes := f.pool.PeriodFrames() * f.pool.FrameBytes()
	assert.Len(t, f.device.written, periodBytes)
}

func TestTickWriteErrorAbortsTick(t *testing.T) {
	f := newPacingFixture(t, time.Minute)
	f.loop.lastActivity = f.now
	f.device.writeErr = assert.AnError
	f.device.avail = 10 * f.pool.PeriodFrames()

	before := &f.pool.CurrentSlot()[0]
	f.tick(t, time.Millisecond)

	assert.Equal(t, 1, f.device.writeCalls, "write error stops the tick")
	assert.Same(t, before, &f.pool.CurrentSlot()[0], "slot counter does not advance on write error")

	// The next tick retries the same slot.
	f.device.writeErr = nil
	f.tick(t, time.Millisecond)
	assert.NotEmpty(t, f.device.written)
}

func TestWriteSlotRetriesPartialWrites(t *testing.T) {
	f := newPacingFixture(t, time.Minute)
	f.loop.lastActivity = f.now
	f.device.partial = 100
	f.device.avail = renderAheadPeriods * f.pool.PeriodFrames()

	f.tick(t, time.Millisecond)

	periodBytes := f.pool.PeriodFrames() * f.pool.FrameBytes()
	assert.Len(t, f.device.written, periodBytes)
	// 512 frames at 100 per call takes 6 calls.
	assert.Equal(t, 6, f.device.writeCalls)
}

func TestRunStopsWhenSignalled(t *testing.T) {
	f := newPacingFixture(t, time.Minute)
	f.device.avail = 0
	f.loop.cfg.TickInterval = time.Millisecond

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.loop.Run(stop)
	}()

	time.Sleep(10 * time.Millisecond)
	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pacing loop did not stop")
	}
}

var _ OutputDevice = (*fakeDevice)(nil)
var _ synth.Engine = (*countEngine)(nil)
