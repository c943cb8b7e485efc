package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSaveYAMLConfigWritesDefaults(t *testing.T) {
	viper.Reset()
	setDefaultConfig()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, saveYAMLConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, yaml.Unmarshal(data, &out))

	audio, ok := out["audio"].(map[string]any)
	require.True(t, ok, "audio section missing")
	assert.Equal(t, 44100, audio["samplerate"])
	assert.Equal(t, 2, audio["channels"])
	assert.Equal(t, 512, audio["periodframes"])
	assert.Equal(t, "60s", audio["idlethreshold"])

	synth, ok := out["synth"].(map[string]any)
	require.True(t, ok, "synth section missing")
	assert.Equal(t, "silence", synth["engine"])
}

func TestDefaultsUnmarshalIntoSettings(t *testing.T) {
	viper.Reset()
	setDefaultConfig()

	settings := &Settings{}
	require.NoError(t, viper.Unmarshal(settings))

	assert.Equal(t, 44100, settings.Audio.SampleRate)
	assert.Equal(t, 60*time.Second, settings.Audio.IdleThreshold)
	assert.Equal(t, "silence", settings.Synth.Engine)
	require.NoError(t, ValidateSettings(settings))
}

func TestSavedConfigRoundTrips(t *testing.T) {
	viper.Reset()
	setDefaultConfig()
	viper.Set("audio.samplerate", 48000)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, saveYAMLConfig(path))

	viper.Reset()
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	settings := &Settings{}
	require.NoError(t, viper.Unmarshal(settings))
	assert.Equal(t, 48000, settings.Audio.SampleRate)
	assert.Equal(t, 60*time.Second, settings.Audio.IdleThreshold)
}
