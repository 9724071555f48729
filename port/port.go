package port

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ptpsync/ptpcore/bmc"
	"github.com/ptpsync/ptpcore/config"
	"github.com/ptpsync/ptpcore/foreignmaster"
	"github.com/ptpsync/ptpcore/hal"
	"github.com/ptpsync/ptpcore/offsetengine"
	ptp "github.com/ptpsync/ptpcore/protocol"
	"github.com/ptpsync/ptpcore/servo"
)

// Identity describes this port's own clock identity and port number and the
// local priority vector it contributes to BMCA.
type Identity struct {
	PortIdentity  ptp.PortIdentity
	ClockQuality  ptp.ClockQuality
	Priority1     uint8
	Priority2     uint8
}

// LocalVector builds the PriorityVector this port advertises for itself:
// StepsRemoved 0, since a port's own dataset always describes the clock as
// its own potential grandmaster.
func (id Identity) LocalVector() ptp.PriorityVector {
	return ptp.PriorityVector{
		Priority1:               id.Priority1,
		ClockClass:              id.ClockQuality.ClockClass,
		ClockAccuracy:           id.ClockQuality.ClockAccuracy,
		OffsetScaledLogVariance: id.ClockQuality.OffsetScaledLogVariance,
		Priority2:               id.Priority2,
		Identity:                id.PortIdentity.ClockIdentity,
		StepsRemoved:            0,
		SenderIdentity:          id.PortIdentity,
	}
}

// Port is a single IEEE 1588 port state machine. It owns its own foreign-
// master table, servo, and offset statistics; nothing here is shared
// between ports, which is what lets a BoundaryClock run N of them
// independently.
type Port struct {
	id       Identity
	cfg      config.Config
	halCaps  hal.Capabilities

	state ptp.PortState

	foreign *foreignmaster.Table
	servo   *servo.Servo
	stats   *offsetengine.Stats

	dataset ptp.PortDataSet
	current ptp.CurrentDataSet
	parent  ptp.ParentDataSet

	lastAnnounceRxTime time.Time
	lastAnnounceTxTime time.Time
	lastSyncTxTime     time.Time
	qualificationDeadline time.Time

	successfulOffsetSamples int
	validationsFailed       int

	seq uint16

	e2e map[uint16]*offsetengine.E2EExchange

	counters ptp.Statistics

	onFaultDetected func(reason string)
	onFaultCleared  func()
}

// New creates a Port in PortStateInitializing, ready for EventInitialize.
func New(id Identity, cfg config.Config, caps hal.Capabilities) *Port {
	p := &Port{
		id:      id,
		cfg:     cfg,
		halCaps: caps,
		state:   ptp.PortStateInitializing,
		foreign: foreignmaster.New(cfg.ForeignMasterCapacity),
		servo:   servo.New(toServoConfig(cfg.Servo)),
		stats:   offsetengine.NewStats(cfg.Sync.VarianceWindowSamples),
		e2e:     make(map[uint16]*offsetengine.E2EExchange),
		dataset: ptp.PortDataSet{
			PortIdentity:           id.PortIdentity,
			PortState:              ptp.PortStateInitializing,
			LogAnnounceInterval:    ptp.LogInterval(cfg.LogAnnounceInterval),
			AnnounceReceiptTimeout: cfg.AnnounceReceiptTimeout,
			LogSyncInterval:        ptp.LogInterval(cfg.LogSyncInterval),
			LogMinDelayReqInterval: ptp.LogInterval(cfg.LogMinDelayReqInterval),
			DelayMechanism:         cfg.DelayMechanismValue(),
			VersionNumber:          ptp.MajorVersion,
		},
	}
	return p
}

func toServoConfig(c config.ServoConfig) servo.Config {
	return servo.Config{
		Kp:                    c.Kp,
		Ki:                    c.Ki,
		MaxFreqAdjustmentPPB:  c.MaxFreqAdjustmentPPB,
		StepThresholdNs:       float64(c.StepThreshold.Nanoseconds()),
		LockThresholdNs:       float64(c.LockThreshold.Nanoseconds()),
		LockingThresholdNs:    float64(100 * time.Microsecond),
		UnlockThresholdNs:     float64(250 * time.Microsecond),
		SamplesForLock:        c.SamplesForLock,
		HoldoverTimeoutMs:     c.HoldoverTimeout.Milliseconds(),
	}
}

// State returns the port's current state.
func (p *Port) State() ptp.PortState { return p.state }

// Statistics returns a copy of the port's observability counters.
func (p *Port) Statistics() ptp.Statistics { return p.counters }

// CurrentDataSet returns a copy of the running synchronization dataset.
func (p *Port) CurrentDataSet() ptp.CurrentDataSet { return p.current }

// PortDataSet returns a copy of the port's own dataset.
func (p *Port) PortDataSet() ptp.PortDataSet { return p.dataset }

// OnFault registers callbacks invoked when the port raises or clears a
// fault. Either may be nil.
func (p *Port) OnFault(detected func(reason string), cleared func()) {
	p.onFaultDetected = detected
	p.onFaultCleared = cleared
}

func (p *Port) transition(ev Event, now time.Time) {
	to, ok := nextState(p.state, ev)
	if !ok {
		return
	}
	from := p.state
	p.exitState(from, now)
	p.state = to
	p.dataset.PortState = to
	p.counters.StateTransitions++
	log.Infof("port %s: %s -[%s]-> %s", p.id.PortIdentity, from, ev, to)
	p.enterState(to, now)
}

func (p *Port) exitState(s ptp.PortState, now time.Time) {
	if s == ptp.PortStateFaulty {
		p.counters.FaultsCleared++
		if p.onFaultCleared != nil {
			p.onFaultCleared()
		}
	}
}

func (p *Port) enterState(s ptp.PortState, now time.Time) {
	switch s {
	case ptp.PortStateListening:
		p.lastAnnounceRxTime = now
	case ptp.PortStatePreMaster:
		// qualification timeout is 2x announce interval per the standard's
		// default PRE_MASTER duration
		p.qualificationDeadline = now.Add(2 * p.dataset.LogAnnounceInterval.Duration())
	case ptp.PortStateUncalibrated:
		p.successfulOffsetSamples = 0
		p.validationsFailed = 0
		p.servo.Reset()
	case ptp.PortStateFaulty:
		p.counters.FaultsDetected++
		if p.onFaultDetected != nil {
			p.onFaultDetected("entered faulty state")
		}
	case ptp.PortStateMaster:
		p.lastAnnounceTxTime = now
		p.lastSyncTxTime = now
	}
}

// Initialize fires EventInitialize (or EventInitializeFailed on err != nil),
// moving the port out of Initializing.
func (p *Port) Initialize(now time.Time, err error) {
	if err != nil {
		p.transition(EventInitializeFailed, now)
		return
	}
	p.transition(EventInitialize, now)
}

// ProcessMessage routes one decoded message through the port state machine.
// Decode/validation errors are folded into counters rather than returned,
// per the propagation policy; this method itself never returns an error for
// malformed input, only for HAL send failures while responding.
func (p *Port) ProcessMessage(now time.Time, pkt ptp.Packet, rxHeader ptp.Header) error {
	if err := p.validate(rxHeader); err != nil {
		p.validationsFailed++
		p.counters.ValidationFailures++
		log.Warningf("port %s: dropping message: %v", p.id.PortIdentity, err)
		return nil
	}
	switch m := pkt.(type) {
	case *ptp.Announce:
		return p.handleAnnounce(now, m)
	case *ptp.SyncDelayReq:
		if m.MessageType() == ptp.MessageSync {
			return p.handleSync(now, m)
		}
		return p.handleDelayReq(now, m)
	case *ptp.FollowUp:
		return p.handleFollowUp(now, m)
	case *ptp.DelayResp:
		return p.handleDelayResp(now, m)
	default:
		p.counters.UnsupportedMessages++
		return nil
	}
}

// validate implements the message-flow coordinator's admission checks on a
// decoded header: version, and domain (when StrictDomainChecking is set).
// Length is not checked here; protocol.DecodePacket bounds-checks it first.
func (p *Port) validate(h ptp.Header) error {
	if h.Version&ptp.MajorVersionMask != ptp.MajorVersion {
		return fmt.Errorf("%w: version %d", ptp.ErrInvalidVersion, h.Version)
	}
	if p.cfg.StrictDomainChecking && h.DomainNumber != p.cfg.DomainNumber {
		return fmt.Errorf("%w: domain %d, want %d", ptp.ErrDomainError, h.DomainNumber, p.cfg.DomainNumber)
	}
	return nil
}

func (p *Port) handleAnnounce(now time.Time, m *ptp.Announce) error {
	p.counters.RxAnnounce++
	p.lastAnnounceRxTime = now
	if err := p.foreign.Upsert(m.Header.SourcePortIdentity, m.AnnounceBody, now); err != nil {
		p.counters.ForeignMasterEvictions++
	}
	p.runBMCA(now)
	return nil
}

// runBMCA never executes with nothing to compare: if the foreign-master
// table is empty, there is no candidate to weigh against the local vector
// and BMCA is skipped entirely, leaving the state machine to rely on the
// announce-receipt timeout instead.
func (p *Port) runBMCA(now time.Time) {
	vectors := p.foreign.Vectors()
	if len(vectors) == 0 {
		return
	}
	p.counters.BMCADecisions++
	bestIdx, outcome := bmc.Best(vectors, p.id.LocalVector())
	switch outcome {
	case bmc.OutcomeBest:
		best := vectors[bestIdx]
		p.parent = ptp.ParentDataSet{
			ParentPortIdentity:      best.SenderIdentity,
			GrandmasterIdentity:     best.Identity,
			GrandmasterPriority1:    best.Priority1,
			GrandmasterPriority2:    best.Priority2,
			GrandmasterClockQuality: ptp.ClockQuality{ClockClass: best.ClockClass, ClockAccuracy: best.ClockAccuracy, OffsetScaledLogVariance: best.OffsetScaledLogVariance},
		}
		p.current.StepsRemoved = best.StepsRemoved + 1
		p.counters.BMCAForeignWins++
		p.transition(EventRSSlave, now)
	case bmc.OutcomeTiedWithLocal:
		// only a local-vs-foreign tie forces Passive; a tie among two
		// foreign candidates was already broken inside bmc.Best
		p.counters.BMCAPassiveWins++
		p.transition(EventRSPassive, now)
	case bmc.OutcomeBeaten:
		p.counters.BMCALocalWins++
		p.transition(EventRSMaster, now)
	}
}

// Tick drives time-based behavior: announce-receipt timeout detection
// (which clears the foreign-master table before dispatching the timeout
// event, so a stale entry can't win a BMCA run the same tick), PreMaster
// qualification timeout, servo holdover detection, and periodic Announce/
// Sync emission while Master.
func (p *Port) Tick(now time.Time) error {
	timeout := time.Duration(p.dataset.AnnounceReceiptTimeout) * p.dataset.LogAnnounceInterval.Duration()
	switch p.state {
	case ptp.PortStateListening:
		if p.foreign.Len() > 0 {
			p.runBMCA(now)
		}
	case ptp.PortStateSlave, ptp.PortStateUncalibrated:
		if !p.lastAnnounceRxTime.IsZero() && now.Sub(p.lastAnnounceRxTime) >= timeout {
			p.foreign.Clear()
			p.counters.AnnounceTimeouts++
			p.transition(EventAnnounceReceiptTimeout, now)
		}
	case ptp.PortStatePreMaster:
		p.runBMCA(now)
		if p.state == ptp.PortStatePreMaster &&
			!p.qualificationDeadline.IsZero() && !now.Before(p.qualificationDeadline) {
			p.transition(EventQualificationTimeoutExpires, now)
		}
	case ptp.PortStateMaster:
		if err := p.sendPeriodicMaster(now); err != nil {
			return err
		}
	}
	if timeout > 0 {
		p.foreign.Prune(now, timeout)
	}
	if p.state == ptp.PortStateUncalibrated &&
		p.successfulOffsetSamples >= 3 && p.validationsFailed == 0 {
		p.transition(EventUncalibratedSynced, now)
	}
	if p.servo.Tick(now) == servo.StateHoldover {
		log.Warningf("port %s: servo in holdover", p.id.PortIdentity)
		switch p.state {
		case ptp.PortStateSlave, ptp.PortStateUncalibrated:
			p.transition(EventSynchronizationFault, now)
		}
	}
	return nil
}

// sendPeriodicMaster drives both periodic emissions a Master port owns: the
// Announce at LogAnnounceInterval and, independently, a two-step Sync/
// Follow_Up pair at LogSyncInterval. Either may fire, both, or neither on a
// given tick, depending on how long it has been since each was last sent.
func (p *Port) sendPeriodicMaster(now time.Time) error {
	if err := p.maybeSendAnnounce(now); err != nil {
		return err
	}
	return p.maybeSendSync(now)
}

func (p *Port) maybeSendAnnounce(now time.Time) error {
	interval := p.dataset.LogAnnounceInterval.Duration()
	if interval <= 0 || now.Sub(p.lastAnnounceTxTime) < interval {
		return nil
	}
	p.lastAnnounceTxTime = now
	ts, err := p.halCaps.GetTimestamp()
	if err != nil {
		return p.sendFailure(now, err)
	}
	ann := &ptp.Announce{
		Header: p.newHeader(ptp.MessageAnnounce, 64),
		AnnounceBody: ptp.AnnounceBody{
			OriginTimestamp:         ts,
			GrandmasterPriority1:    p.id.Priority1,
			GrandmasterClockQuality: p.id.ClockQuality,
			GrandmasterPriority2:    p.id.Priority2,
			GrandmasterIdentity:     p.id.PortIdentity.ClockIdentity,
			StepsRemoved:            0,
			TimeSource:              ptp.TimeSourceInternalOscillator,
		},
	}
	if err := p.halCaps.SendAnnounce(ann); err != nil {
		return p.sendFailure(now, err)
	}
	p.counters.TxAnnounce++
	return nil
}

// maybeSendSync emits a two-step Sync (OriginTimestamp left zero, FlagTwoStep
// set) followed immediately by its Follow_Up carrying the precise origin
// timestamp, both sharing one sequence ID, the way a two-step master always
// pairs them. newHeader bumps p.seq on every call, so the Follow_Up's header
// sequence is forced back to match the Sync it completes.
func (p *Port) maybeSendSync(now time.Time) error {
	interval := p.dataset.LogSyncInterval.Duration()
	if interval <= 0 || now.Sub(p.lastSyncTxTime) < interval {
		return nil
	}
	p.lastSyncTxTime = now
	ts, err := p.halCaps.GetTimestamp()
	if err != nil {
		return p.sendFailure(now, err)
	}
	sync := &ptp.SyncDelayReq{Header: p.newHeader(ptp.MessageSync, 44)}
	sync.Header.FlagField |= ptp.FlagTwoStep
	seq := sync.Header.SequenceID
	if err := p.halCaps.SendSync(sync); err != nil {
		return p.sendFailure(now, err)
	}
	p.counters.TxSync++
	fup := &ptp.FollowUp{
		Header:       p.newHeader(ptp.MessageFollowUp, 44),
		FollowUpBody: ptp.FollowUpBody{PreciseOriginTimestamp: ts},
	}
	fup.Header.SequenceID = seq
	if err := p.halCaps.SendFollowUp(fup); err != nil {
		return p.sendFailure(now, err)
	}
	p.counters.TxFollowUp++
	return nil
}

// sendFailure implements the persistent-HAL-send-failure-in-Master policy:
// a send error while Master raises FAULT_DETECTED rather than being
// silently retried. now is threaded through from the caller's tick rather
// than read from the wall clock, keeping state transitions reproducible
// under a fake HAL clock.
func (p *Port) sendFailure(now time.Time, err error) error {
	if p.state == ptp.PortStateMaster {
		p.transition(EventFaultDetected, now)
	}
	return fmt.Errorf("hal send failed: %w", err)
}

func (p *Port) newHeader(mt ptp.MessageType, length uint16) ptp.Header {
	p.seq++
	return ptp.Header{
		SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(mt, 0),
		Version:            ptp.Version,
		MessageLength:      length,
		DomainNumber:       p.cfg.DomainNumber,
		SourcePortIdentity: p.id.PortIdentity,
		SequenceID:         p.seq,
		LogMessageInterval: p.dataset.LogSyncInterval,
	}
}
