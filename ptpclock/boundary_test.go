package ptpclock

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

func newBoundaryTestPort(n uint16, now time.Time) *port.Port {
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

func TestNewBoundaryClockRejectsEmptyPortSet(t *testing.T) {
	_, err := NewBoundaryClock(nil)
	assert.Error(t, err)
}

func TestNewBoundaryClockRejectsTooManyPorts(t *testing.T) {
	now := time.Now()
	ports := make([]*port.Port, MaxPorts+1)
	for i := range ports {
		ports[i] = newBoundaryTestPort(uint16(i+1), now)
	}
	_, err := NewBoundaryClock(ports)
	assert.Error(t, err)
}

func TestBoundaryClockReflectsPortStates(t *testing.T) {
	now := time.Now()
	p := newBoundaryTestPort(1, now)
	bc, err := NewBoundaryClock([]*port.Port{p})
	require.NoError(t, err)

	assert.False(t, bc.HasMasterPort())
	assert.False(t, bc.HasSlavePort())
	assert.False(t, bc.IsSynchronized())
}

func TestBoundaryClockDeliverRoutesThroughCoordinator(t *testing.T) {
	now := time.Now()
	p := newBoundaryTestPort(1, now)
	bc, err := NewBoundaryClock([]*port.Port{p})
	require.NoError(t, err)

	ann := &ptp.Announce{
		Header: ptp.Header{
			SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessageAnnounce, 0),
			Version:            ptp.Version,
			MessageLength:      64,
			SourcePortIdentity: ptp.PortIdentity{ClockIdentity: 0x99, PortNumber: 1},
		},
		AnnounceBody: ptp.AnnounceBody{
			GrandmasterPriority1:    255,
			GrandmasterClockQuality: ptp.ClockQuality{ClockClass: 248, ClockAccuracy: ptp.ClockAccuracyNanosecond100},
			GrandmasterPriority2:    128,
			GrandmasterIdentity:     0x99,
		},
	}
	raw, err := ann.MarshalBinary()
	require.NoError(t, err)

	bc.Deliver(now, raw)
	assert.Equal(t, ptp.PortStatePreMaster, p.State())
}
