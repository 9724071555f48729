package protocol

import "time"

// PriorityVector is the seven-tuple BMCA compares lexicographically, in
// order: GrandmasterPriority1, GrandmasterClockQuality.ClockClass,
// GrandmasterClockQuality.ClockAccuracy, GrandmasterClockQuality.
// OffsetScaledLogVariance, GrandmasterPriority2, GrandmasterIdentity,
// StepsRemoved. SenderIdentity records the port identity the Announce arrived
// from; it is not one of the compared fields.
type PriorityVector struct {
	Priority1               uint8
	ClockClass              ClockClass
	ClockAccuracy           ClockAccuracy
	OffsetScaledLogVariance uint16
	Priority2               uint8
	Identity                ClockIdentity
	StepsRemoved            uint16
	SenderIdentity          PortIdentity
}

// VectorFromAnnounce builds a PriorityVector out of a received Announce body
// plus the port identity it arrived on, so the BMCA comparator never has to
// know about wire-message shapes.
func VectorFromAnnounce(a AnnounceBody, sender PortIdentity) PriorityVector {
	return PriorityVector{
		Priority1:               a.GrandmasterPriority1,
		ClockClass:              a.GrandmasterClockQuality.ClockClass,
		ClockAccuracy:           a.GrandmasterClockQuality.ClockAccuracy,
		OffsetScaledLogVariance: a.GrandmasterClockQuality.OffsetScaledLogVariance,
		Priority2:               a.GrandmasterPriority2,
		Identity:                a.GrandmasterIdentity,
		StepsRemoved:            a.StepsRemoved,
		SenderIdentity:          sender,
	}
}

// PortDataSet is the subset of the standard's portDS managed locally by a
// port state machine instance.
type PortDataSet struct {
	PortIdentity            PortIdentity
	PortState               PortState
	LogMinDelayReqInterval  LogInterval
	PeerMeanPathDelay       TimeInterval
	LogAnnounceInterval     LogInterval
	AnnounceReceiptTimeout  uint8
	LogSyncInterval         LogInterval
	DelayMechanism          DelayMechanism
	LogMinPdelayReqInterval LogInterval
	VersionNumber           uint8
}

// DelayMechanism selects which delay measurement exchange a port runs.
type DelayMechanism uint8

// Delay mechanisms this engine supports.
const (
	DelayMechanismE2E DelayMechanism = iota
	DelayMechanismP2P
)

func (d DelayMechanism) String() string {
	if d == DelayMechanismP2P {
		return "P2P"
	}
	return "E2E"
}

// CurrentDataSet is the standard's currentDS: the running view of distance
// to, and quality of, the synchronization source.
type CurrentDataSet struct {
	StepsRemoved     uint16
	OffsetFromMaster TimeInterval
	MeanPathDelay    TimeInterval
	LastUpdate       time.Time
}

// ParentDataSet is the standard's parentDS: identity of the immediate parent
// and ultimate grandmaster, plus the grandmaster's advertised quality.
type ParentDataSet struct {
	ParentPortIdentity                   PortIdentity
	ParentStats                          bool
	ObservedParentOffsetScaledLogVariance uint16
	ObservedParentClockPhaseChangeRate    uint32
	GrandmasterIdentity                   ClockIdentity
	GrandmasterClockQuality               ClockQuality
	GrandmasterPriority1                  uint8
	GrandmasterPriority2                  uint8
}

// ForeignMasterEntry is a single row of the bounded foreign-master table kept
// per port: the most recent Announce seen from a given sender, plus how many
// have been seen overall and when the first/last one arrived.
type ForeignMasterEntry struct {
	SenderIdentity PortIdentity
	Vector         PriorityVector
	Announce       AnnounceBody
	MessageCount   uint32
	FirstSeen      time.Time
	LastSeen       time.Time
}

// Statistics are the free-running counters a port/coordinator exposes for
// observability. All fields are monotonic counters except where noted.
type Statistics struct {
	RxSync                 uint64
	RxFollowUp             uint64
	RxDelayReq             uint64
	RxDelayResp            uint64
	RxAnnounce             uint64
	RxPDelayReq            uint64
	RxPDelayResp           uint64
	RxPDelayRespFollowUp   uint64
	RxSignaling            uint64
	TxSync                 uint64
	TxFollowUp             uint64
	TxDelayReq             uint64
	TxDelayResp            uint64
	TxAnnounce             uint64
	RxErrors               uint64
	DecodeErrors           uint64
	UnsupportedMessages    uint64
	ValidationFailures     uint64
	ValidationsPassed      uint64
	ForeignMasterEvictions uint64
	BMCADecisions          uint64
	BMCALocalWins          uint64
	BMCAForeignWins        uint64
	BMCAPassiveWins        uint64
	AnnounceTimeouts       uint64
	OffsetsComputed        uint64
	SubMicrosecondSamples  uint64
	StateTransitions       uint64
	ServoStepCorrections   uint64
	ServoFreqCorrections   uint64
	FaultsDetected         uint64
	FaultsCleared          uint64
}

// HealthState is a coarse classification of synchronization quality, derived
// from offset magnitude by the sync coordinator.
type HealthState uint8

// Health states, ordered from best to worst.
const (
	HealthSynchronized HealthState = iota
	HealthConverging
	HealthDegraded
	HealthCritical
)

func (h HealthState) String() string {
	switch h {
	case HealthSynchronized:
		return "SYNCHRONIZED"
	case HealthConverging:
		return "CONVERGING"
	case HealthDegraded:
		return "DEGRADED"
	default:
		return "CRITICAL"
	}
}

// HealthStatus is the heartbeat payload emitted at most once per second.
type HealthStatus struct {
	State     HealthState
	Offset    TimeInterval
	Delay     TimeInterval
	PortState PortState
	Timestamp time.Time
}
