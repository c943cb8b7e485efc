package audioout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSize(t *testing.T) {
	tests := []struct {
		name         string
		sampleRate   int
		periodFrames int
		channels     int
		refFrames    int
		want         int
		wantErr      bool
	}{
		{
			// (4096*44100)/(11025*512) = 32
			name:       "cd rate stereo",
			sampleRate: 44100, periodFrames: 512, channels: 2, refFrames: 4096,
			want: 32,
		},
		{
			// (4096*11025)/(11025*512) = 8
			name:       "reference rate",
			sampleRate: 11025, periodFrames: 512, channels: 2, refFrames: 4096,
			want: 8,
		},
		{
			// Uncapped result would be 64; 65536/(1024*2*2) = 16 slots fit.
			name:       "capped by staging region",
			sampleRate: 176400, periodFrames: 1024, channels: 2, refFrames: 4096,
			want: 16,
		},
		{
			// (1024*8000)/(11025*2048) rounds to 0.
			name:       "too few subbuffers",
			sampleRate: 8000, periodFrames: 2048, channels: 2, refFrames: 1024,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PoolSize(tt.sampleRate, tt.periodFrames, tt.channels, tt.refFrames)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStagingPoolSlots(t *testing.T) {
	pool, err := NewStagingPool(44100, 512, 2, 4096)
	require.NoError(t, err)

	assert.Equal(t, 32, pool.Count())
	assert.Equal(t, 512, pool.PeriodFrames())
	assert.Equal(t, 4, pool.FrameBytes())

	periodBytes := 512 * 4
	for i := 0; i < pool.Count(); i++ {
		assert.Len(t, pool.Slot(i), periodBytes)
	}

	// Slots must not overlap: marking one leaves the others untouched.
	pool.Slot(3)[0] = 0xAA
	assert.Zero(t, pool.Slot(2)[0])
	assert.Zero(t, pool.Slot(4)[0])
}

func TestStagingPoolCounterWraps(t *testing.T) {
	pool, err := NewStagingPool(11025, 512, 2, 4096)
	require.NoError(t, err)
	require.Equal(t, 8, pool.Count())

	first := &pool.CurrentSlot()[0]
	for i := 0; i < pool.Count(); i++ {
		pool.Advance()
	}
	assert.Same(t, first, &pool.CurrentSlot()[0], "counter should wrap back to the first slot")
}
