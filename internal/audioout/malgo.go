package audioout

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/midisynthd/midisynthd/internal/errors"
	"github.com/midisynthd/midisynthd/internal/logging"
)

// PlaybackDeviceInfo describes an available playback device.
type PlaybackDeviceInfo struct {
	Index     int
	Name      string
	IsDefault bool
}

// platformBackend picks the native audio backend, auto-select elsewhere.
func platformBackend() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		return nil
	}
}

// ListPlaybackDevices returns the available playback devices.
func ListPlaybackDevices() ([]PlaybackDeviceInfo, error) {
	ctx, err := malgo.InitContext(platformBackend(), malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to get playback devices: %w", err)
	}

	devices := make([]PlaybackDeviceInfo, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, PlaybackDeviceInfo{
			Index:     i,
			Name:      info.Name(),
			IsDefault: info.IsDefault == 1,
		})
	}
	return devices, nil
}

// MalgoDevice adapts a malgo playback device to the push-style
// OutputDevice surface. The device pulls frames from an internal staging
// FIFO on its own callback thread; WriteFrames fills the FIFO from the
// pacing loop. AvailFrames reports the FIFO's free space, which stands in
// for the hardware buffer's.
type MalgoDevice struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	log    *slog.Logger

	frameBytes int

	mu       sync.Mutex
	fifo     []byte
	fifoCap  int
	underrun bool
	paused   bool
	primed   bool
}

// NewMalgoDevice opens the playback device whose name contains nameMatch
// (empty selects the default device) with an internal buffer of
// bufferFrames frames.
func NewMalgoDevice(nameMatch string, sampleRate, channels, periodFrames, bufferFrames int, debug bool) (*MalgoDevice, error) {
	log := logging.ForService("audio-device")

	ctx, err := malgo.InitContext(platformBackend(), malgo.ContextConfig{}, func(message string) {
		if debug {
			log.Debug("malgo", "message", strings.TrimSpace(message))
		}
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to initialize audio context: %w", err)).
			Category(errors.CategoryAudioDevice).
			Component("audio-device").
			Build()
	}

	frameBytes := channels * 2
	d := &MalgoDevice{
		ctx:        ctx,
		log:        log,
		frameBytes: frameBytes,
		fifo:       make([]byte, 0, bufferFrames*frameBytes),
		fifoCap:    bufferFrames * frameBytes,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(periodFrames)
	deviceConfig.Alsa.NoMMap = 1

	if nameMatch != "" {
		infos, err := ctx.Devices(malgo.Playback)
		if err != nil {
			d.teardownContext()
			return nil, fmt.Errorf("failed to get playback devices: %w", err)
		}
		found := false
		for i := range infos {
			if strings.Contains(infos[i].Name(), nameMatch) {
				deviceConfig.Playback.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			d.teardownContext()
			return nil, errors.Newf("no playback device matching %q", nameMatch).
				Category(errors.CategoryAudioDevice).
				Component("audio-device").
				Build()
		}
	}

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: d.onSendFrames,
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		d.teardownContext()
		return nil, errors.New(fmt.Errorf("failed to initialize playback device: %w", err)).
			Category(errors.CategoryAudioDevice).
			Component("audio-device").
			DeviceContext(nameMatch, sampleRate, channels).
			Build()
	}
	d.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		d.teardownContext()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return d, nil
}

// onSendFrames runs on the device callback thread and drains the FIFO
// into the hardware buffer, padding with silence when starved. The device
// starts pulling before the first prefill write lands, so an empty FIFO
// only counts as an underrun once WriteFrames has primed it.
func (d *MalgoDevice) onSendFrames(pOutput, _ []byte, frameCount uint32) {
	d.mu.Lock()
	n := copy(pOutput, d.fifo)
	if n < len(pOutput) {
		clear(pOutput[n:])
		if d.primed && !d.paused && n == 0 {
			d.underrun = true
		}
	}
	d.fifo = d.fifo[:copy(d.fifo, d.fifo[n:])]
	d.mu.Unlock()
}

func (d *MalgoDevice) State() DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.underrun:
		return StateUnderrun
	case d.paused:
		return StatePaused
	default:
		return StateRunning
	}
}

func (d *MalgoDevice) AvailFrames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return (d.fifoCap - len(d.fifo)) / d.frameBytes
}

func (d *MalgoDevice) Pause(pause bool) error {
	d.mu.Lock()
	d.paused = pause
	d.mu.Unlock()

	if pause {
		if err := d.device.Stop(); err != nil {
			d.mu.Lock()
			d.paused = false
			d.mu.Unlock()
			return ErrPauseUnsupported
		}
		return nil
	}
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to resume playback device: %w", err)
	}
	return nil
}

func (d *MalgoDevice) WriteFrames(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	free := d.fifoCap - len(d.fifo)
	n := len(p)
	if n > free {
		n = free - free%d.frameBytes
	}
	d.fifo = append(d.fifo, p[:n]...)
	if n > 0 {
		d.primed = true
	}
	return n / d.frameBytes, nil
}

func (d *MalgoDevice) Prepare() error {
	d.mu.Lock()
	d.underrun = false
	d.mu.Unlock()
	return nil
}

func (d *MalgoDevice) Close() error {
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	d.teardownContext()
	return nil
}

func (d *MalgoDevice) teardownContext() {
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
}
