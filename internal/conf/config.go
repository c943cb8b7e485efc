// config.go: This file contains the configuration for midisynthd. It defines
// the settings struct and functions to load and save the settings.
package conf

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/midisynthd/midisynthd/internal/errors"
)

// LogSettings contains settings for a rotated log file.
type LogSettings struct {
	Enabled bool   // true to enable file logging
	Path    string // path to log file
}

// MainSettings contains top level settings for the daemon.
type MainSettings struct {
	Name string      // client name announced to the MIDI subsystem
	Log  LogSettings // log file settings
}

// StreamDumpSettings controls the encoded command stream debug tap.
type StreamDumpSettings struct {
	Enabled bool   // true to record the encoded byte stream
	Path    string // file the recording is flushed to on shutdown
}

// MIDISettings contains settings for the MIDI event source.
type MIDISettings struct {
	Source string             // substring match for the MIDI input port, empty picks the first available
	Dump   StreamDumpSettings // command stream recording
}

// AudioSettings contains settings for audio rendering and output.
type AudioSettings struct {
	Device          string        // output device name match, empty for system default
	SampleRate      int           // output sample rate in Hz
	Channels        int           // number of interleaved output channels
	PeriodFrames    int           // frames rendered per engine call
	BufferRefFrames int           // device buffer target in frames at the 11025 Hz reference rate
	IdleThreshold   time.Duration // silence duration before playback is paused
}

// SynthSettings contains settings passed through to the rendering engine.
type SynthSettings struct {
	Engine  string         // engine implementation to use
	Options map[string]int // opaque engine options (volume, reverb, chorus, ...)
}

// TelemetrySettings contains settings for prometheus telemetry.
type TelemetrySettings struct {
	Enabled bool   // true to enable metrics endpoint
	Listen  string // IP address and port to listen on, e.g. "localhost:9090"
}

// Settings is the root configuration struct.
type Settings struct {
	Debug     bool // true to enable debug level logging
	Main      MainSettings
	MIDI      MIDISettings
	Audio     AudioSettings
	Synth     SynthSettings
	Telemetry TelemetrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and stores it as the package level instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Component("conf").
			Build()
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := saveYAMLConfig(configPath); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// saveYAMLConfig writes the current configuration state to configPath as
// YAML. The write goes through a temporary file in the same directory so
// a crash cannot leave a half-written config behind.
func saveYAMLConfig(configPath string) error {
	yamlData, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error renaming temporary file to config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPaths returns the config file search paths in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error resolving user config dir: %w", err)
	}
	return []string{
		filepath.Join(configDir, "midisynthd"),
		".",
	}, nil
}

// Setting returns the current settings instance, loading it on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	instance := settingsInstance
	settingsMutex.RUnlock()
	if instance != nil {
		return instance
	}

	instance, err := Load()
	if err != nil {
		log.Fatalf("Error loading settings: %v", err)
	}
	return instance
}
