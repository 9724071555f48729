package ptpclock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ptp "github.com/ptpsync/ptpcore/protocol"
)

func TestOrdinaryClockWrapsPort(t *testing.T) {
	now := time.Now()
	p := newBoundaryTestPort(1, now)
	c := NewOrdinaryClock(p)
	assert.Same(t, p, c.Port())
}

func TestOrdinaryClockDeliverRoutesToPort(t *testing.T) {
	now := time.Now()
	p := newBoundaryTestPort(1, now)
	c := NewOrdinaryClock(p)

	ann := &ptp.Announce{
		Header: ptp.Header{
			SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessageAnnounce, 0),
			Version:            ptp.Version,
			MessageLength:      64,
			SourcePortIdentity: ptp.PortIdentity{ClockIdentity: 0x99, PortNumber: 1},
		},
		AnnounceBody: ptp.AnnounceBody{
			GrandmasterPriority1:    1,
			GrandmasterClockQuality: ptp.ClockQuality{ClockClass: 248, ClockAccuracy: ptp.ClockAccuracyNanosecond100},
			GrandmasterPriority2:    128,
			GrandmasterIdentity:     0x99,
		},
	}
	raw, err := ann.MarshalBinary()
	require.NoError(t, err)

	c.Deliver(now, raw)
	assert.Equal(t, ptp.PortStateUncalibrated, p.State())
}

func TestOrdinaryClockRunStopsOnContextCancel(t *testing.T) {
	now := time.Now()
	p := newBoundaryTestPort(1, now)
	c := NewOrdinaryClock(p)
	c.tickInterval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
