package offsetengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeE2EMatchesStandardFormula(t *testing.T) {
	base := time.Unix(1700000000, 0)
	ex := E2EExchange{
		T1: base,
		T2: base.Add(100 * time.Millisecond),
		T3: base.Add(200 * time.Millisecond),
		T4: base.Add(280 * time.Millisecond),
	}
	offset, delay, err := ComputeE2E(ex)
	require.NoError(t, err)
	// serverToClient = 100ms, clientToServer = 80ms
	// delay = (100+80)/2 = 90ms ; offset = (100-80)/2 = 10ms
	assert.InDelta(t, float64(10*time.Millisecond), offset, 1)
	assert.InDelta(t, float64(90*time.Millisecond), delay, 1)
}

func TestComputeE2ESubtractsCorrectionField(t *testing.T) {
	base := time.Unix(1700000000, 0)
	ex := E2EExchange{
		T1:              base,
		T2:              base.Add(100 * time.Millisecond),
		T3:              base.Add(200 * time.Millisecond),
		T4:              base.Add(280 * time.Millisecond),
		CorrectionSync:  1_000_000, // 1ms residence subtracted from server->client leg
		CorrectionDelayResp: 0,
	}
	offset, delay, err := ComputeE2E(ex)
	require.NoError(t, err)
	// serverToClient becomes 99ms, clientToServer stays 80ms
	assert.InDelta(t, float64(9_500_000), offset, 1)
	assert.InDelta(t, float64(89_500_000), delay, 1)
}

func TestComputeE2EIncompleteExchange(t *testing.T) {
	_, _, err := ComputeE2E(E2EExchange{T1: time.Now(), T2: time.Now()})
	require.ErrorIs(t, err, ErrIncompleteExchange)
}

func TestComputeE2ERejectsNonPositiveDelay(t *testing.T) {
	base := time.Unix(1700000000, 0)
	ex := E2EExchange{
		T1: base,
		T2: base.Add(-50 * time.Millisecond), // pathologically negative leg
		T3: base,
		T4: base.Add(-50 * time.Millisecond),
	}
	_, _, err := ComputeE2E(ex)
	require.ErrorIs(t, err, ErrNegativeMeanPathDelay)
}

func TestComputeP2PFormula(t *testing.T) {
	base := time.Unix(1700000000, 0)
	p := P2PExchange{
		T1:         base,
		T4:         base.Add(100 * time.Millisecond),
		Turnaround: 20 * time.Millisecond,
	}
	delay, err := ComputeP2P(p)
	require.NoError(t, err)
	// roundTrip = 100ms - 20ms = 80ms; delay = 40ms
	assert.InDelta(t, float64(40*time.Millisecond), delay, 1)
}

func TestComputeP2PIncomplete(t *testing.T) {
	_, err := ComputeP2P(P2PExchange{T1: time.Now()})
	require.ErrorIs(t, err, ErrIncompleteExchange)
}

func TestStatsRollingWindow(t *testing.T) {
	s := NewStats(4)
	s.Add(10, 100)
	s.Add(20, 200)
	s.Add(30, 300)

	snap := s.Snapshot()
	assert.Equal(t, uint64(3), snap.Count)
	assert.InDelta(t, 20, snap.OffsetMean, 0.001)
	assert.Equal(t, 10.0, snap.OffsetMin)
	assert.Equal(t, 30.0, snap.OffsetMax)
	assert.InDelta(t, 200, snap.DelayMean, 0.001)
}

func TestDefaultWindowSizeUsedWhenZero(t *testing.T) {
	s := NewStats(0)
	require.NotNil(t, s.delayWindow)
	assert.Equal(t, DefaultWindowSize, s.delayWindow.size)
}
