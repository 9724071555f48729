package port

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ptpsync/ptpcore/hal"
	"github.com/ptpsync/ptpcore/offsetengine"
	ptp "github.com/ptpsync/ptpcore/protocol"
	"github.com/ptpsync/ptpcore/servo"
)

// handleSync implements the slave side of the E2E Sync/Follow_Up/Delay_Req/
// Delay_Resp exchange: T2 is stamped on receipt, T1 taken straight from a
// one-step Sync or deferred to the matching Follow_Up for a two-step one.
// Once both timestamps are known the port immediately emits its own
// Delay_Req, starting the second half of the exchange.
func (p *Port) handleSync(now time.Time, m *ptp.SyncDelayReq) error {
	p.counters.RxSync++
	if p.state != ptp.PortStateSlave && p.state != ptp.PortStateUncalibrated {
		return nil
	}
	ex := p.exchangeFor(m.Header.SequenceID)
	ex.T2 = now
	ex.CorrectionSync = m.Header.CorrectionField.Nanoseconds()
	if m.Header.FlagField&ptp.FlagTwoStep == 0 {
		ex.T1 = m.OriginTimestamp.Time()
	}
	return p.maybeSendDelayReq(ex, m.Header.SequenceID)
}

func (p *Port) handleFollowUp(now time.Time, m *ptp.FollowUp) error {
	p.counters.RxFollowUp++
	ex, ok := p.e2e[m.Header.SequenceID]
	if !ok {
		return nil
	}
	ex.T1 = m.PreciseOriginTimestamp.Time()
	return p.maybeSendDelayReq(ex, m.Header.SequenceID)
}

func (p *Port) maybeSendDelayReq(ex *offsetengine.E2EExchange, seq uint16) error {
	if ex.T1.IsZero() || ex.T2.IsZero() || !ex.T3.IsZero() {
		return nil
	}
	ts, err := p.halCaps.GetTimestamp()
	if err != nil {
		return err
	}
	ex.T3 = ts.Time()
	req := &ptp.SyncDelayReq{
		Header:           p.newHeader(ptp.MessageDelayReq, 44),
		SyncDelayReqBody: ptp.SyncDelayReqBody{OriginTimestamp: ts},
	}
	req.Header.SequenceID = seq
	if err := p.halCaps.SendDelayReq(req); err != nil {
		return err
	}
	p.counters.TxDelayReq++
	return nil
}

// handleDelayReq implements the master side: stamp the receipt time as T4
// and answer with Delay_Resp immediately.
func (p *Port) handleDelayReq(now time.Time, m *ptp.SyncDelayReq) error {
	p.counters.RxDelayReq++
	if p.state != ptp.PortStateMaster {
		return nil
	}
	resp := &ptp.DelayResp{
		Header: p.newHeader(ptp.MessageDelayResp, 54),
		DelayRespBody: ptp.DelayRespBody{
			ReceiveTimestamp:       ptp.NewTimestamp(now),
			RequestingPortIdentity: m.Header.SourcePortIdentity,
		},
	}
	resp.Header.SequenceID = m.Header.SequenceID
	if err := p.halCaps.SendDelayResp(resp); err != nil {
		return p.sendFailure(now, err)
	}
	p.counters.TxDelayResp++
	return nil
}

// handleDelayResp completes the exchange: once T4 is known the offset and
// mean path delay are computed, fed to the servo and the running
// statistics, and the exchange is discarded.
func (p *Port) handleDelayResp(now time.Time, m *ptp.DelayResp) error {
	p.counters.RxDelayResp++
	if m.RequestingPortIdentity != p.id.PortIdentity {
		return nil
	}
	ex, ok := p.e2e[m.Header.SequenceID]
	if !ok {
		return nil
	}
	ex.T4 = m.ReceiveTimestamp.Time()
	ex.CorrectionDelayResp = m.Header.CorrectionField.Nanoseconds()
	delete(p.e2e, m.Header.SequenceID)
	if !ex.Complete() {
		return nil
	}
	offsetNs, delayNs, err := offsetengine.ComputeE2E(*ex)
	if err != nil {
		p.validationsFailed++
		p.counters.ValidationFailures++
		log.Warningf("port %s: discarding exchange: %v", p.id.PortIdentity, err)
		return nil
	}
	p.counters.OffsetsComputed++
	p.counters.ValidationsPassed++
	absOffsetNs := offsetNs
	if absOffsetNs < 0 {
		absOffsetNs = -absOffsetNs
	}
	if absOffsetNs < float64(time.Microsecond) {
		p.counters.SubMicrosecondSamples++
	}
	p.stats.Add(offsetNs, delayNs)
	p.current.OffsetFromMaster = ptp.NewTimeInterval(offsetNs)
	p.current.MeanPathDelay = ptp.NewTimeInterval(delayNs)
	p.current.LastUpdate = now
	result := p.servo.Sample(offsetNs, now)
	if result.Step {
		p.counters.ServoStepCorrections++
	} else {
		p.counters.ServoFreqCorrections++
	}
	if err := p.applyServoResult(result); err != nil {
		return err
	}
	p.successfulOffsetSamples++
	return nil
}

func (p *Port) applyServoResult(r servo.Result) error {
	if r.Step {
		return p.halCaps.AdjustClock(int64(r.StepOffsetNs), hal.AdjustStep)
	}
	return p.halCaps.AdjustFrequency(r.FreqPPB)
}

// exchangeFor returns the in-flight E2E exchange for a sequence ID,
// creating one if this is the first message seen for it.
func (p *Port) exchangeFor(seq uint16) *offsetengine.E2EExchange {
	ex, ok := p.e2e[seq]
	if !ok {
		ex = &offsetengine.E2EExchange{}
		p.e2e[seq] = ex
	}
	return ex
}
