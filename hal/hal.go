// Package hal defines the hardware abstraction layer contract the port
// state machine and clock containers are written against. It specifies only
// the capability surface — send primitives, timestamping, and clock/
// frequency adjustment — the way ptp/simpleclient's UDPConn/UDPConnWithTS
// interfaces inject transport, and timestamp.go/clock.go name the
// timestamping and adjustment operations. No real syscalls live here: a
// concrete HAL (network sockets, hardware PHC, simulation) is out of scope
// and is expected to be supplied by the embedder.
package hal

import (
	ptp "github.com/ptpsync/ptpcore/protocol"
)

// AdjustMode selects how AdjustClock applies an offset correction.
type AdjustMode uint8

// Adjustment modes.
const (
	// AdjustStep sets the clock directly to the corrected time.
	AdjustStep AdjustMode = iota
	// AdjustSlew nudges the clock gradually toward the corrected time.
	AdjustSlew
)

func (m AdjustMode) String() string {
	if m == AdjustSlew {
		return "SLEW"
	}
	return "STEP"
}

// Capabilities is the full set of operations the core engine needs from the
// platform it runs on. An embedder implements this once per physical or
// virtual port/clock and passes it in; the core never reaches past this
// interface for I/O or time.
type Capabilities interface {
	SendAnnounce(p *ptp.Announce) error
	SendSync(p *ptp.SyncDelayReq) error
	SendFollowUp(p *ptp.FollowUp) error
	SendDelayReq(p *ptp.SyncDelayReq) error
	SendDelayResp(p *ptp.DelayResp) error
	SendPDelayReq(p *ptp.PDelayReq) error
	SendPDelayResp(p *ptp.PDelayResp) error
	SendPDelayRespFollowUp(p *ptp.PDelayRespFollowUp) error

	// GetTimestamp returns the local time, used to stamp outgoing messages
	// and to drive tick(now).
	GetTimestamp() (ptp.Timestamp, error)

	// AdjustClock applies a one-shot offset correction of offsetNs
	// nanoseconds (slave minus master; a positive value means the local
	// clock is ahead) using the given mode.
	AdjustClock(offsetNs int64, mode AdjustMode) error

	// AdjustFrequency sets the ongoing frequency correction, in parts per
	// billion, applied continuously until the next call.
	AdjustFrequency(ppb float64) error
}

// HardwareTimestamper is an optional capability: a HAL that implements it
// can report whether the timestamp it just produced for a send/receive came
// from hardware (more accurate) or software (a fallback). Callers type-
// assert for this; its absence just means "assume software timestamps."
type HardwareTimestamper interface {
	HardwareTimestampOnTx() bool
	HardwareTimestampOnRx() bool
}
