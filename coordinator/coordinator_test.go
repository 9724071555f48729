package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptpsync/ptpcore/config"
	"github.com/ptpsync/ptpcore/hal"
	"github.com/ptpsync/ptpcore/port"
	ptp "github.com/ptpsync/ptpcore/protocol"
)

func newTestPort(n uint16, now time.Time) *port.Port {
	lo := hal.NewLoopback(now)
	id := port.Identity{
		PortIdentity: ptp.PortIdentity{ClockIdentity: ptp.ClockIdentity(n), PortNumber: 1},
		ClockQuality: ptp.ClockQuality{ClockClass: 248, ClockAccuracy: ptp.ClockAccuracyNanosecond100},
		Priority1:    128,
		Priority2:    128,
	}
	p := port.New(id, config.Default(), lo)
	p.Initialize(now, nil)
	return p
}

func marshaledAnnounce(t *testing.T, priority1 uint8) []byte {
	ann := &ptp.Announce{
		Header: ptp.Header{
			SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessageAnnounce, 0),
			Version:            ptp.Version,
			MessageLength:      64,
			SourcePortIdentity: ptp.PortIdentity{ClockIdentity: 0x99, PortNumber: 1},
			SequenceID:         1,
		},
		AnnounceBody: ptp.AnnounceBody{
			GrandmasterPriority1:    priority1,
			GrandmasterClockQuality: ptp.ClockQuality{ClockClass: 248, ClockAccuracy: ptp.ClockAccuracyNanosecond100},
			GrandmasterPriority2:    128,
			GrandmasterIdentity:     0x99,
		},
	}
	raw, err := ann.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestDeliverRoutesDecodedAnnounceToPorts(t *testing.T) {
	now := time.Now()
	p := newTestPort(1, now)
	c := New([]*port.Port{p})

	c.Deliver(now, marshaledAnnounce(t, 255)) // worse than local, local wins
	assert.Equal(t, ptp.PortStatePreMaster, p.State())
	assert.Equal(t, uint64(0), c.counters.decodeErrors)
}

func TestDeliverCountsDecodeErrorsForGarbage(t *testing.T) {
	p := newTestPort(1, time.Now())
	c := New([]*port.Port{p})
	c.Deliver(time.Now(), []byte{1, 2, 3})
	assert.Equal(t, uint64(1), c.counters.decodeErrors)
	assert.Equal(t, uint64(0), c.counters.unsupportedMsg)
}

func TestDeliverCountsUnsupportedMessageSeparately(t *testing.T) {
	p := newTestPort(1, time.Now())
	c := New([]*port.Port{p})

	raw := make([]byte, 44)
	raw[0] = byte(ptp.NewSdoIDAndMsgType(ptp.MessageManagement, 0))
	raw[1] = ptp.Version

	c.Deliver(time.Now(), raw)
	assert.Equal(t, uint64(1), c.counters.unsupportedMsg)
	assert.Equal(t, uint64(0), c.counters.decodeErrors)
}

func TestTickNeverHeartbeatsOnFirstCall(t *testing.T) {
	p := newTestPort(1, time.Now())
	c := New([]*port.Port{p})

	status, err := c.Tick(time.Now())
	require.NoError(t, err)
	assert.Nil(t, status)
	assert.Equal(t, uint64(0), c.counters.heartbeats)
}

func TestTickRateLimitsHeartbeats(t *testing.T) {
	now := time.Now()
	p := newTestPort(1, now)
	c := New([]*port.Port{p})

	status, err := c.Tick(now)
	require.NoError(t, err)
	assert.Nil(t, status)

	status, err = c.Tick(now.Add(500 * time.Millisecond))
	require.NoError(t, err)
	assert.Nil(t, status)

	status, err = c.Tick(now.Add(1100 * time.Millisecond))
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, uint64(1), c.counters.heartbeats)
}

func TestClassifyOffsetThresholdBoundaries(t *testing.T) {
	assert.Equal(t, ptp.HealthSynchronized, classifyOffset(HealthySyncThresholdNs))
	assert.Equal(t, ptp.HealthConverging, classifyOffset(HealthySyncThresholdNs+1))
	assert.Equal(t, ptp.HealthConverging, classifyOffset(ConvergingSyncThresholdNs))
	assert.Equal(t, ptp.HealthDegraded, classifyOffset(ConvergingSyncThresholdNs+1))
	assert.Equal(t, ptp.HealthDegraded, classifyOffset(DegradedSyncThresholdNs))
	assert.Equal(t, ptp.HealthCritical, classifyOffset(DegradedSyncThresholdNs+1))
	assert.Equal(t, ptp.HealthDegraded, classifyOffset(-(DegradedSyncThresholdNs)))
}
