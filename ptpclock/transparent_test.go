package ptpclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	ptp "github.com/ptpsync/ptpcore/protocol"
)

func TestUpdateCorrectionFieldAddsResidence(t *testing.T) {
	in := ptp.Correction(0x12340000)
	out := UpdateCorrectionField(in, 150*time.Nanosecond)
	assert.Equal(t, ptp.Correction(0x12CA0000), out)
}

func TestCalculateResidenceTime(t *testing.T) {
	rx := time.Unix(1700000000, 0)
	tx := rx.Add(150 * time.Nanosecond)
	assert.Equal(t, 150*time.Nanosecond, CalculateResidenceTime(rx, tx))
}

func TestRelaySyncAccumulatesCorrectionField(t *testing.T) {
	tc := NewTransparentClock(ptp.DelayMechanismE2E)
	m := &ptp.SyncDelayReq{Header: ptp.Header{CorrectionField: ptp.Correction(0x12340000)}}
	rx := time.Unix(1700000000, 0)
	tx := rx.Add(150 * time.Nanosecond)
	tc.RelaySync(m, rx, tx)
	assert.Equal(t, ptp.Correction(0x12CA0000), m.Header.CorrectionField)
}

func TestRelayPDelayRespNoopInE2EMode(t *testing.T) {
	tc := NewTransparentClock(ptp.DelayMechanismE2E)
	m := &ptp.PDelayResp{Header: ptp.Header{CorrectionField: ptp.Correction(0x12340000)}}
	rx := time.Unix(1700000000, 0)
	tx := rx.Add(150 * time.Nanosecond)
	tc.RelayPDelayResp(m, rx, tx)
	assert.Equal(t, ptp.Correction(0x12340000), m.Header.CorrectionField)
}

func TestRelayPDelayRespUpdatesInP2PMode(t *testing.T) {
	tc := NewTransparentClock(ptp.DelayMechanismP2P)
	m := &ptp.PDelayResp{Header: ptp.Header{CorrectionField: ptp.Correction(0x12340000)}}
	rx := time.Unix(1700000000, 0)
	tx := rx.Add(150 * time.Nanosecond)
	tc.RelayPDelayResp(m, rx, tx)
	assert.Equal(t, ptp.Correction(0x12CA0000), m.Header.CorrectionField)
}

func TestTransparentClockMode(t *testing.T) {
	tc := NewTransparentClock(ptp.DelayMechanismP2P)
	assert.Equal(t, ptp.DelayMechanismP2P, tc.Mode())
}
