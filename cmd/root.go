package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/midisynthd/midisynthd/cmd/devices"
	"github.com/midisynthd/midisynthd/cmd/run"
	"github.com/midisynthd/midisynthd/internal/buildinfo"
	"github.com/midisynthd/midisynthd/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "midisynthd",
		Short:   "MIDI synthesizer daemon",
		Long:    "midisynthd bridges a MIDI input port to an external rendering engine and paces the rendered audio to a playback device.",
		Version: buildinfo.Get().String(),
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		run.Command(settings),
		devices.Command(),
	}

	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.MIDI.Source, "source", viper.GetString("midi.source"), "MIDI input port to connect to, matched as a substring")
	rootCmd.PersistentFlags().StringVar(&settings.Audio.Device, "device", viper.GetString("audio.device"), "Playback device to use, matched as a substring")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.SampleRate, "samplerate", viper.GetInt("audio.samplerate"), "Output sample rate in Hz")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.Channels, "channels", viper.GetInt("audio.channels"), "Number of output channels")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
