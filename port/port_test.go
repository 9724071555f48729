package port

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptpsync/ptpcore/bmc"
	"github.com/ptpsync/ptpcore/config"
	"github.com/ptpsync/ptpcore/hal"
	ptp "github.com/ptpsync/ptpcore/protocol"
	"github.com/ptpsync/ptpcore/servo"
)

func testIdentity(n uint16) Identity {
	return Identity{
		PortIdentity: ptp.PortIdentity{ClockIdentity: ptp.ClockIdentity(n), PortNumber: 1},
		ClockQuality: ptp.ClockQuality{ClockClass: 248, ClockAccuracy: ptp.ClockAccuracyNanosecond100},
		Priority1:    128,
		Priority2:    128,
	}
}

func newTestPort(n uint16, now time.Time) (*Port, *hal.Loopback) {
	lo := hal.NewLoopback(now)
	cfg := config.Default()
	p := New(testIdentity(n), cfg, lo)
	p.Initialize(now, nil)
	return p, lo
}

func announceFrom(sender ptp.PortIdentity, priority1 uint8, seq uint16) *ptp.Announce {
	return &ptp.Announce{
		Header: ptp.Header{
			SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessageAnnounce, 0),
			Version:            ptp.Version,
			SourcePortIdentity: sender,
			SequenceID:         seq,
		},
		AnnounceBody: ptp.AnnounceBody{
			GrandmasterPriority1:    priority1,
			GrandmasterClockQuality: ptp.ClockQuality{ClockClass: 248, ClockAccuracy: ptp.ClockAccuracyNanosecond100},
			GrandmasterPriority2:    128,
			GrandmasterIdentity:     sender.ClockIdentity,
		},
	}
}

func TestInitializeMovesToListening(t *testing.T) {
	now := time.Now()
	p, _ := newTestPort(1, now)
	assert.Equal(t, ptp.PortStateListening, p.State())
}

func TestInitializeFailureGoesFaulty(t *testing.T) {
	now := time.Now()
	lo := hal.NewLoopback(now)
	p := New(testIdentity(1), config.Default(), lo)
	p.Initialize(now, errors.New("boom"))
	assert.Equal(t, ptp.PortStateFaulty, p.State())
}

func TestBMCABeatenMovesLocalTowardMaster(t *testing.T) {
	now := time.Now()
	p, _ := newTestPort(1, now)
	worse := announceFrom(ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}, 255, 1)
	require.NoError(t, p.ProcessMessage(now, worse, worse.Header))
	assert.Equal(t, ptp.PortStatePreMaster, p.State())
}

func TestBMCABestMovesLocalTowardSlave(t *testing.T) {
	now := time.Now()
	p, _ := newTestPort(1, now)
	better := announceFrom(ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}, 1, 1)
	require.NoError(t, p.ProcessMessage(now, better, better.Header))
	assert.Equal(t, ptp.PortStateUncalibrated, p.State())
}

func TestBMCATieMovesLocalToPassive(t *testing.T) {
	defer bmc.ClearForcedTie()
	now := time.Now()
	p, _ := newTestPort(1, now)
	bmc.ForceTie(true)
	tied := announceFrom(ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}, 128, 1)
	require.NoError(t, p.ProcessMessage(now, tied, tied.Header))
	assert.Equal(t, ptp.PortStatePassive, p.State())
}

func TestPreMasterQualificationTimeoutPromotesToMaster(t *testing.T) {
	now := time.Now()
	p, _ := newTestPort(1, now)
	worse := announceFrom(ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}, 255, 1)
	require.NoError(t, p.ProcessMessage(now, worse, worse.Header))
	require.Equal(t, ptp.PortStatePreMaster, p.State())

	later := now.Add(5 * time.Second)
	require.NoError(t, p.Tick(later))
	assert.Equal(t, ptp.PortStateMaster, p.State())
}

func TestValidateRejectsDomainMismatchWhenStrict(t *testing.T) {
	now := time.Now()
	p, _ := newTestPort(1, now)
	bad := announceFrom(ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}, 1, 1)
	bad.Header.DomainNumber = 7
	require.NoError(t, p.ProcessMessage(now, bad, bad.Header))
	// dropped before reaching BMCA, so the port stays in Listening
	assert.Equal(t, ptp.PortStateListening, p.State())
	assert.Equal(t, uint64(1), p.Statistics().ValidationFailures)
}

func TestProcessMessageCountsUnsupported(t *testing.T) {
	now := time.Now()
	p, _ := newTestPort(1, now)
	pd := &ptp.PDelayReq{Header: ptp.Header{Version: ptp.Version}}
	require.NoError(t, p.ProcessMessage(now, pd, pd.Header))
	assert.Equal(t, uint64(1), p.Statistics().UnsupportedMessages)
}

func TestMasterSendFailureRaisesFault(t *testing.T) {
	now := time.Now()
	lo := hal.NewLoopback(now)
	cfg := config.Default()
	cfg.LogAnnounceInterval = -10 // effectively send on every tick
	p := New(testIdentity(1), cfg, lo)
	p.Initialize(now, nil)
	worse := announceFrom(ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}, 255, 1)
	require.NoError(t, p.ProcessMessage(now, worse, worse.Header))
	require.NoError(t, p.Tick(now.Add(5*time.Second)))
	require.Equal(t, ptp.PortStateMaster, p.State())

	failing := &failingHAL{Loopback: lo}
	p2 := New(testIdentity(9), cfg, failing)
	p2.Initialize(now, nil)
	worse2 := announceFrom(ptp.PortIdentity{ClockIdentity: 20, PortNumber: 1}, 255, 1)
	require.NoError(t, p2.ProcessMessage(now, worse2, worse2.Header))
	require.NoError(t, p2.Tick(now.Add(5*time.Second)))
	require.Equal(t, ptp.PortStateMaster, p2.State())
	_ = p2.Tick(now.Add(10 * time.Second))
	assert.Equal(t, ptp.PortStateFaulty, p2.State())
}

type failingHAL struct {
	*hal.Loopback
}

func (f *failingHAL) SendAnnounce(p *ptp.Announce) error { return errors.New("send failed") }

func TestFullE2EExchangeUpdatesOffsetAndStats(t *testing.T) {
	base := time.Unix(1700000000, 0)
	masterLo := hal.NewLoopback(base)
	slaveLo := hal.NewLoopback(base)

	master, _ := newTestPortWithHAL(10, base, masterLo)
	slave, _ := newTestPortWithHAL(20, base, slaveLo)

	// force master into Master and slave into Uncalibrated via BMCA
	worse := announceFrom(master.id.PortIdentity, 255, 1)
	require.NoError(t, master.ProcessMessage(base, worse, worse.Header))
	require.NoError(t, master.Tick(base.Add(5*time.Second)))
	require.Equal(t, ptp.PortStateMaster, master.State())

	better := announceFrom(master.id.PortIdentity, 1, 1)
	require.NoError(t, slave.ProcessMessage(base, better, better.Header))
	require.Equal(t, ptp.PortStateUncalibrated, slave.State())

	t1 := base.Add(1 * time.Second)
	sync := &ptp.SyncDelayReq{
		Header: ptp.Header{
			SdoIDAndMsgType: ptp.NewSdoIDAndMsgType(ptp.MessageSync, 0),
			Version:         ptp.Version,
			SequenceID:      1,
		},
		SyncDelayReqBody: ptp.SyncDelayReqBody{OriginTimestamp: ptp.NewTimestamp(t1)},
	}
	t2 := t1.Add(10 * time.Millisecond)
	require.NoError(t, slave.ProcessMessage(t2, sync, sync.Header))
	require.Len(t, slaveLo.Sent, 1)

	delayReq, ok := slaveLo.Sent[0].(*ptp.SyncDelayReq)
	require.True(t, ok)

	t3 := t2.Add(5 * time.Millisecond)
	require.NoError(t, master.ProcessMessage(t3, delayReq, delayReq.Header))
	require.Len(t, masterLo.Sent, 1)

	delayResp, ok := masterLo.Sent[0].(*ptp.DelayResp)
	require.True(t, ok)
	delayResp.RequestingPortIdentity = slave.id.PortIdentity

	t4 := t3.Add(2 * time.Millisecond)
	require.NoError(t, slave.ProcessMessage(t4, delayResp, delayResp.Header))

	snap := slave.CurrentDataSet()
	assert.NotZero(t, snap.LastUpdate)
	assert.Equal(t, 1, slave.successfulOffsetSamples)
}

func newTestPortWithHAL(n uint16, now time.Time, caps hal.Capabilities) (*Port, hal.Capabilities) {
	cfg := config.Default()
	p := New(testIdentity(n), cfg, caps)
	p.Initialize(now, nil)
	return p, caps
}

func TestListeningTickRunsBMCAWhenForeignMasterPresent(t *testing.T) {
	now := time.Now()
	p, _ := newTestPort(1, now)
	require.Equal(t, ptp.PortStateListening, p.State())

	better := announceFrom(ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}, 1, 1)
	require.NoError(t, p.foreign.Upsert(better.Header.SourcePortIdentity, better.AnnounceBody, now))

	require.NoError(t, p.Tick(now))
	assert.Equal(t, ptp.PortStateUncalibrated, p.State())
}

func TestListeningTickSkipsBMCAWhenNoForeignMaster(t *testing.T) {
	now := time.Now()
	p, _ := newTestPort(1, now)
	require.NoError(t, p.Tick(now))
	assert.Equal(t, ptp.PortStateListening, p.State())
}

func TestUncalibratedAnnounceTimeoutGoesListening(t *testing.T) {
	now := time.Now()
	p, _ := newTestPort(1, now)
	better := announceFrom(ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}, 1, 1)
	require.NoError(t, p.ProcessMessage(now, better, better.Header))
	require.Equal(t, ptp.PortStateUncalibrated, p.State())

	later := now.Add(10 * time.Second)
	require.NoError(t, p.Tick(later))
	assert.Equal(t, ptp.PortStateListening, p.State())
	assert.Equal(t, uint64(1), p.Statistics().AnnounceTimeouts)
	assert.Zero(t, p.foreign.Len())
}

func TestSlaveAnnounceTimeoutGoesListeningNotUncalibrated(t *testing.T) {
	now := time.Now()
	p, _ := newTestPort(1, now)
	p.state = ptp.PortStateSlave
	p.dataset.PortState = ptp.PortStateSlave
	p.lastAnnounceRxTime = now

	later := now.Add(10 * time.Second)
	require.NoError(t, p.Tick(later))
	assert.Equal(t, ptp.PortStateListening, p.State())
}

func TestListeningAndPassiveHaveNoAnnounceTimeoutTransition(t *testing.T) {
	to, ok := nextState(ptp.PortStateListening, EventAnnounceReceiptTimeout)
	assert.False(t, ok, "expected no transition, got %v", to)
	to, ok = nextState(ptp.PortStatePassive, EventAnnounceReceiptTimeout)
	assert.False(t, ok, "expected no transition, got %v", to)
}

func TestMasterEmitsPeriodicSyncAndFollowUp(t *testing.T) {
	now := time.Now()
	p, lo := newTestPort(1, now)
	worse := announceFrom(ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}, 255, 1)
	require.NoError(t, p.ProcessMessage(now, worse, worse.Header))
	require.Equal(t, ptp.PortStatePreMaster, p.State())

	require.NoError(t, p.Tick(now.Add(5*time.Second)))
	require.Equal(t, ptp.PortStateMaster, p.State())

	require.NoError(t, p.Tick(now.Add(10*time.Second)))

	var sawSync, sawFollowUp bool
	var syncSeq, fupSeq uint16
	for _, m := range lo.Sent {
		switch v := m.(type) {
		case *ptp.SyncDelayReq:
			if v.MessageType() == ptp.MessageSync {
				sawSync = true
				syncSeq = v.Header.SequenceID
				assert.NotZero(t, v.Header.FlagField&ptp.FlagTwoStep)
			}
		case *ptp.FollowUp:
			sawFollowUp = true
			fupSeq = v.Header.SequenceID
		}
	}
	assert.True(t, sawSync, "expected a Sync message from Master")
	assert.True(t, sawFollowUp, "expected a Follow_Up message from Master")
	assert.Equal(t, syncSeq, fupSeq, "Sync and Follow_Up should share a sequence ID")
	assert.NotZero(t, p.Statistics().TxSync)
	assert.NotZero(t, p.Statistics().TxFollowUp)
}

func TestHandleDelayRespNegativeMeanPathDelayIncrementsValidationFailures(t *testing.T) {
	now := time.Now()
	p, _ := newTestPort(1, now)
	p.state = ptp.PortStateUncalibrated

	const seq = uint16(7)
	ex := p.exchangeFor(seq)
	ex.T1 = now
	ex.T2 = now
	ex.T3 = now.Add(10 * time.Millisecond)

	resp := &ptp.DelayResp{
		Header: ptp.Header{SequenceID: seq},
		DelayRespBody: ptp.DelayRespBody{
			ReceiveTimestamp:       ptp.NewTimestamp(now),
			RequestingPortIdentity: p.id.PortIdentity,
		},
	}
	require.NoError(t, p.handleDelayResp(now, resp))
	assert.Equal(t, 1, p.validationsFailed)
	assert.Equal(t, uint64(1), p.Statistics().ValidationFailures)
}

func TestServoHoldoverRaisesSynchronizationFaultFromSlave(t *testing.T) {
	now := time.Now()
	p, _ := newTestPort(1, now)
	p.state = ptp.PortStateSlave
	p.dataset.PortState = ptp.PortStateSlave
	// keep announces arriving recently so the separate announce-receipt
	// timeout doesn't fire in the same tick and mask the servo fault
	p.lastAnnounceRxTime = now.Add(9500 * time.Millisecond)

	for i := 0; i < 20; i++ {
		p.servo.Sample(500, now.Add(time.Duration(i)*time.Millisecond))
	}
	require.Equal(t, servo.StateLocked, p.servo.State())

	later := now.Add(10 * time.Second)
	require.NoError(t, p.Tick(later))
	assert.Equal(t, ptp.PortStateUncalibrated, p.State())
}

func TestForeignMasterTablePrunedOnTick(t *testing.T) {
	now := time.Now()
	p, _ := newTestPort(1, now)
	stale := ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}
	require.NoError(t, p.foreign.Upsert(stale, ptp.AnnounceBody{}, now))
	require.Equal(t, 1, p.foreign.Len())

	require.NoError(t, p.Tick(now.Add(time.Hour)))
	assert.Zero(t, p.foreign.Len())
}
