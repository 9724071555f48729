package ptpclock

import (
	"time"

	ptp "github.com/ptpsync/ptpcore/protocol"
)

// TransparentClock owns no port state machines: it never runs BMCA and
// never becomes Master or Slave. It relays Sync/Follow_Up/Delay_Req/
// Delay_Resp traffic, adding the time each message spent transiting the
// clock to correctionField so downstream Ordinary/Boundary clocks can
// subtract it back out.
type TransparentClock struct {
	mode ptp.DelayMechanism
}

// NewTransparentClock creates a TransparentClock operating in the given
// delay mechanism mode.
func NewTransparentClock(mode ptp.DelayMechanism) *TransparentClock {
	return &TransparentClock{mode: mode}
}

// Mode returns the clock's configured delay mechanism.
func (t *TransparentClock) Mode() ptp.DelayMechanism { return t.mode }

// CalculateResidenceTime returns how long a message spent inside this clock
// between ingress and egress timestamps.
func CalculateResidenceTime(rx, tx time.Time) time.Duration {
	return tx.Sub(rx)
}

// UpdateCorrectionField adds a residence time to an existing correctionField
// value. correctionField is nanoseconds scaled by 2**16 (see
// protocol.Correction), so residence is scaled the same way before being
// added: a correctionField of 0x1234_0000 (Correction for exactly
// 0x1234 ns) with a 150ns residence becomes 0x1234_0000 + 150*65536 =
// 0x12CA_0000.
func UpdateCorrectionField(in ptp.Correction, residence time.Duration) ptp.Correction {
	return ptp.NewCorrection(in.Nanoseconds() + float64(residence.Nanoseconds()))
}

// RelaySync updates a Sync/Delay_Req message's correctionField in place for
// the residence time it spent inside this clock, the transparent-clock
// core operation for both E2E and P2P modes.
func (t *TransparentClock) RelaySync(m *ptp.SyncDelayReq, rx, tx time.Time) {
	m.Header.CorrectionField = UpdateCorrectionField(m.Header.CorrectionField, CalculateResidenceTime(rx, tx))
}

// RelayPDelayResp updates a Pdelay_Resp's correctionField for its residence
// time, the P2P-mode analog of RelaySync: an E2E transparent clock never
// sees Pdelay exchanges, since those are link-local and do not traverse it,
// so calling this in E2E mode is a no-op.
func (t *TransparentClock) RelayPDelayResp(m *ptp.PDelayResp, rx, tx time.Time) {
	if t.mode != ptp.DelayMechanismP2P {
		return
	}
	m.Header.CorrectionField = UpdateCorrectionField(m.Header.CorrectionField, CalculateResidenceTime(rx, tx))
}
