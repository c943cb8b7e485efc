// consts.go: fixed parameters of the rendering pipeline
package conf

const (
	// ChannelCapacity is the size of the MIDI command transfer channel in bytes.
	ChannelCapacity = 65536

	// StagingRegionBytes caps the total size of the render staging pool.
	StagingRegionBytes = 65536

	// ReferenceRate is the sample rate the device buffer target is expressed at.
	ReferenceRate = 11025

	// BytesPerSample for signed 16-bit PCM output.
	BytesPerSample = 2

	// MinSubbuffers is the smallest usable staging pool. Fewer means the
	// period size is too large for the staging region at the configured rate.
	MinSubbuffers = 4
)
