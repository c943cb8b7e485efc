package audioout

import (
	"github.com/midisynthd/midisynthd/internal/conf"
	"github.com/midisynthd/midisynthd/internal/errors"
)

// StagingPool is a fixed region of subbuffers, each holding one period of
// interleaved samples for all output channels. A monotonically increasing
// modulo-N counter tracks which slot is rendered and written next; slot
// ownership moves from rendering to device output strictly in counter
// order.
type StagingPool struct {
	buf          []byte
	periodFrames int
	frameBytes   int
	periodBytes  int
	count        int
	counter      int
}

// PoolSize computes the number of subbuffers for the given audio
// parameters: the device buffer target expressed at the 11025 Hz
// reference rate, scaled to the actual rate, capped so the pool fits the
// staging region.
func PoolSize(sampleRate, periodFrames, channels, refFrames int) (int, error) {
	periodBytes := periodFrames * channels * conf.BytesPerSample
	n := int((int64(refFrames) * int64(sampleRate)) / (int64(conf.ReferenceRate) * int64(periodFrames)))
	if max := conf.StagingRegionBytes / periodBytes; n > max {
		n = max
	}
	if n < conf.MinSubbuffers {
		return 0, errors.Newf("unsupported audio parameters: %d Hz, %d channels, %d frame periods",
			sampleRate, channels, periodFrames).
			Category(errors.CategoryConfiguration).
			Component("staging-pool").
			Build()
	}
	return n, nil
}

// NewStagingPool allocates the staging region for the given parameters.
func NewStagingPool(sampleRate, periodFrames, channels, refFrames int) (*StagingPool, error) {
	n, err := PoolSize(sampleRate, periodFrames, channels, refFrames)
	if err != nil {
		return nil, err
	}

	frameBytes := channels * conf.BytesPerSample
	periodBytes := periodFrames * frameBytes
	return &StagingPool{
		buf:          make([]byte, n*periodBytes),
		periodFrames: periodFrames,
		frameBytes:   frameBytes,
		periodBytes:  periodBytes,
		count:        n,
	}, nil
}

// Count returns the number of subbuffers.
func (p *StagingPool) Count() int { return p.count }

// PeriodFrames returns the frames per subbuffer.
func (p *StagingPool) PeriodFrames() int { return p.periodFrames }

// FrameBytes returns the byte size of one interleaved frame.
func (p *StagingPool) FrameBytes() int { return p.frameBytes }

// Slot returns the i-th subbuffer.
func (p *StagingPool) Slot(i int) []byte {
	return p.buf[i*p.periodBytes : (i+1)*p.periodBytes]
}

// CurrentSlot returns the subbuffer the counter points at.
func (p *StagingPool) CurrentSlot() []byte {
	return p.Slot(p.counter)
}

// Advance moves the counter to the next slot, wrapping at the pool size.
func (p *StagingPool) Advance() {
	p.counter++
	if p.counter == p.count {
		p.counter = 0
	}
}
