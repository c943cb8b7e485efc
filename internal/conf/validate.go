// validate.go: validation of user supplied configuration
package conf

import (
	"fmt"
	"time"
)

// ValidateSettings checks the loaded settings for values the pipeline
// cannot operate with. It returns the first problem found.
func ValidateSettings(settings *Settings) error {
	if err := validateAudioSettings(&settings.Audio); err != nil {
		return err
	}
	if settings.Telemetry.Enabled && settings.Telemetry.Listen == "" {
		return fmt.Errorf("telemetry enabled but no listen address configured")
	}
	return nil
}

func validateAudioSettings(audio *AudioSettings) error {
	if audio.SampleRate < 8000 || audio.SampleRate > 192000 {
		return fmt.Errorf("audio sample rate %d out of range 8000-192000", audio.SampleRate)
	}
	if audio.Channels < 1 || audio.Channels > 8 {
		return fmt.Errorf("audio channel count %d out of range 1-8", audio.Channels)
	}
	if audio.PeriodFrames < 32 {
		return fmt.Errorf("audio period of %d frames is too small", audio.PeriodFrames)
	}
	periodBytes := audio.PeriodFrames * audio.Channels * BytesPerSample
	if periodBytes*MinSubbuffers > StagingRegionBytes {
		return fmt.Errorf("audio period of %d frames with %d channels does not fit %d subbuffers in the staging region",
			audio.PeriodFrames, audio.Channels, MinSubbuffers)
	}
	if audio.BufferRefFrames < audio.PeriodFrames {
		return fmt.Errorf("device buffer target of %d frames is smaller than one period (%d)",
			audio.BufferRefFrames, audio.PeriodFrames)
	}
	if audio.IdleThreshold < time.Second {
		return fmt.Errorf("idle threshold %s is below the 1s minimum", audio.IdleThreshold)
	}
	return nil
}
