// Package run implements the daemon's main subcommand: it assembles the
// pipeline from the configuration and runs it until interrupted.
package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/midisynthd/midisynthd/internal/audioout"
	"github.com/midisynthd/midisynthd/internal/bridge"
	"github.com/midisynthd/midisynthd/internal/conf"
	"github.com/midisynthd/midisynthd/internal/logging"
	"github.com/midisynthd/midisynthd/internal/midistream"
	"github.com/midisynthd/midisynthd/internal/streamdump"
	"github.com/midisynthd/midisynthd/internal/synth"
	"github.com/midisynthd/midisynthd/internal/telemetry"
)

// Command returns the run subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the synthesizer daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(settings)
		},
	}
}

func execute(settings *conf.Settings) error {
	log := logging.ForService("run")

	if err := conf.ValidateSettings(settings); err != nil {
		return err
	}

	var metrics *telemetry.Metrics
	if settings.Telemetry.Enabled {
		metrics = telemetry.NewMetrics()
		srv := metrics.Serve(settings.Telemetry.Listen)
		defer func() {
			if srv != nil {
				_ = srv.Close()
			}
		}()
	}

	engine, err := newEngine(settings)
	if err != nil {
		return err
	}

	pool, err := audioout.NewStagingPool(
		settings.Audio.SampleRate,
		settings.Audio.PeriodFrames,
		settings.Audio.Channels,
		settings.Audio.BufferRefFrames,
	)
	if err != nil {
		_ = engine.Close()
		return err
	}

	device, err := audioout.NewMalgoDevice(
		settings.Audio.Device,
		settings.Audio.SampleRate,
		settings.Audio.Channels,
		settings.Audio.PeriodFrames,
		pool.Count()*pool.PeriodFrames(),
		settings.Debug,
	)
	if err != nil {
		_ = engine.Close()
		return err
	}

	source, err := midistream.NewRTMIDISource(settings.MIDI.Source)
	if err != nil {
		_ = device.Close()
		_ = engine.Close()
		return err
	}

	cfg := bridge.Config{
		Source:        source,
		Engine:        engine,
		Device:        device,
		Pool:          pool,
		Metrics:       metrics,
		IdleThreshold: settings.Audio.IdleThreshold,
	}

	var recorder *streamdump.Recorder
	if settings.MIDI.Dump.Enabled {
		recorder = streamdump.NewRecorder(settings.MIDI.Dump.Path, streamdump.DefaultCapacity)
		cfg.Dump = recorder
	}

	log.Info("starting pipeline",
		"midi_port", source.PortName(),
		"sample_rate", settings.Audio.SampleRate,
		"channels", settings.Audio.Channels,
		"period_frames", settings.Audio.PeriodFrames)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := bridge.New(cfg).Run(ctx)

	if recorder != nil {
		if err := recorder.Flush(); err != nil {
			log.Error("error flushing stream recording", "error", err)
		}
	}

	return runErr
}

// newEngine constructs the configured rendering engine.
func newEngine(settings *conf.Settings) (synth.Engine, error) {
	cfg := synth.Config{
		SampleRate: settings.Audio.SampleRate,
		Channels:   settings.Audio.Channels,
		Options:    settings.Synth.Options,
	}

	switch settings.Synth.Engine {
	case "silence":
		return synth.NewSilenceEngine(cfg), nil
	default:
		return nil, fmt.Errorf("unknown rendering engine %q", settings.Synth.Engine)
	}
}
