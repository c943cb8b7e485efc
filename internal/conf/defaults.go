// defaults.go viper defaults for midisynthd configuration
package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for the configuration parameters.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main settings
	viper.SetDefault("main.name", "midisynthd")
	viper.SetDefault("main.log.enabled", false)
	viper.SetDefault("main.log.path", "midisynthd.log")

	// MIDI event source settings
	viper.SetDefault("midi.source", "")
	viper.SetDefault("midi.dump.enabled", false)
	viper.SetDefault("midi.dump.path", "midistream.bin")

	// Audio output settings
	viper.SetDefault("audio.device", "")
	viper.SetDefault("audio.samplerate", 44100)
	viper.SetDefault("audio.channels", 2)
	viper.SetDefault("audio.periodframes", 512)
	// Device buffer target in frames at the 11025 Hz reference rate,
	// scaled proportionally to the actual sample rate at startup.
	viper.SetDefault("audio.bufferrefframes", 4096)
	// Stored as a duration string so the generated config stays readable.
	viper.SetDefault("audio.idlethreshold", "60s")

	// Rendering engine settings
	viper.SetDefault("synth.engine", "silence")
	viper.SetDefault("synth.options", map[string]int{})

	// Telemetry settings
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "localhost:9190")
}
