package servo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpikeFilterRequiresAtLeastTwoSamples(t *testing.T) {
	f := NewSpikeFilter(DefaultSpikeFilterConfig())
	assert.False(t, f.IsSpike(1_000_000))
	f.Add(100)
	assert.False(t, f.IsSpike(1_000_000))
}

func TestSpikeFilterFlagsOutlierRelativeToHistory(t *testing.T) {
	f := NewSpikeFilter(SpikeFilterConfig{RingSize: 10, StddevFactor: 3.0})
	for _, v := range []float64{98, 102, 99, 101} {
		f.Add(v)
	}
	assert.True(t, f.IsSpike(1000))
	assert.False(t, f.IsSpike(100))
}

func TestSpikeFilterZeroStddevNeverFlags(t *testing.T) {
	f := NewSpikeFilter(SpikeFilterConfig{RingSize: 10, StddevFactor: 3.0})
	f.Add(100)
	f.Add(100)
	f.Add(100)
	assert.False(t, f.IsSpike(100_000))
}

func TestSpikeFilterAddOverwritesOldestOnceFull(t *testing.T) {
	f := NewSpikeFilter(SpikeFilterConfig{RingSize: 3, StddevFactor: 3.0})
	f.Add(1)
	f.Add(2)
	f.Add(3)
	f.Add(4) // overwrites the ring slot that held 1
	assert.Equal(t, 3, f.count)
}

func TestSpikeFilterResetClearsHistory(t *testing.T) {
	f := NewSpikeFilter(SpikeFilterConfig{RingSize: 5, StddevFactor: 3.0})
	f.Add(98)
	f.Add(102)
	f.Reset()
	assert.Equal(t, 0, f.count)
	assert.False(t, f.IsSpike(1_000_000))
}

func TestDefaultSpikeFilterConfigValues(t *testing.T) {
	cfg := DefaultSpikeFilterConfig()
	assert.Equal(t, 30, cfg.RingSize)
	assert.Equal(t, 3.0, cfg.StddevFactor)
}
