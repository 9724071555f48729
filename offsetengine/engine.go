// Package offsetengine computes mean path delay and offset-from-master from
// the four (or two, for P2P) exchanged timestamps, and keeps a rolling
// window of statistics over accepted samples. The four-timestamp formulas
// are grounded on sptp/client/measurements.go's mData/latest(); the rolling
// statistics use the same Welford online algorithm facebook/time's fbclock
// daemon uses for its clock-quality formulas, via github.com/eclesh/welford,
// instead of a second hand-rolled variance accumulator.
package offsetengine

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/eclesh/welford"
)

// Sample is a single accepted offset/delay measurement.
type Sample struct {
	OffsetNs        float64
	MeanPathDelayNs float64
	Timestamp       time.Time
}

// ErrIncompleteExchange is returned when fewer than the required timestamps
// for the configured delay mechanism are present.
var ErrIncompleteExchange = fmt.Errorf("incomplete timestamp exchange")

// ErrNegativeMeanPathDelay is returned when the computed mean path delay is
// not strictly positive, which the standard treats as an invalid sample.
var ErrNegativeMeanPathDelay = fmt.Errorf("mean path delay is not positive")

// E2EExchange holds the four timestamps of one Sync/Follow_Up + Delay_Req/
// Delay_Resp round: T1 departure of Sync from master, T2 arrival of Sync at
// slave, T3 departure of Delay_Req from slave, T4 arrival of Delay_Req at
// master.
type E2EExchange struct {
	T1, T2, T3, T4 time.Time
	// CorrectionSync/CorrectionDelayResp are the correctionField values (in
	// ns) carried by the Sync/Follow_Up and Delay_Resp messages respectively.
	CorrectionSync, CorrectionDelayResp float64
}

// Complete reports whether all four timestamps have been recorded.
func (e E2EExchange) Complete() bool {
	return !e.T1.IsZero() && !e.T2.IsZero() && !e.T3.IsZero() && !e.T4.IsZero()
}

// ComputeE2E implements the end-to-end delay mechanism's offset and mean
// path delay formulas:
//
//	offset        = ((T2 − T1) − (T4 − T3)) / 2
//	meanPathDelay = ((T2 − T1) + (T4 − T3)) / 2
//
// correctionField contributions are subtracted from each leg before the
// formulas are applied, which folds correctionField residence-time
// accumulation into the calculation. A sample is only accepted when all four
// timestamps are present and the resulting mean path delay is strictly
// positive. Out-of-order timestamps (T2<T1 or T4<T3) log a warning and the
// sample is still evaluated.
func ComputeE2E(e E2EExchange) (offsetNs, delayNs float64, err error) {
	if !e.Complete() {
		return 0, 0, ErrIncompleteExchange
	}
	if e.T2.Before(e.T1) || e.T4.Before(e.T3) {
		log.Warningf("offset engine: timestamp ordering looks wrong (T2<T1 or T4<T3), sample still evaluated")
	}
	serverToClient := float64(e.T2.Sub(e.T1)) - e.CorrectionSync
	clientToServer := float64(e.T4.Sub(e.T3)) - e.CorrectionDelayResp
	delay := (serverToClient + clientToServer) / 2
	offset := (serverToClient - clientToServer) / 2
	if delay <= 0 {
		return offset, delay, ErrNegativeMeanPathDelay
	}
	return offset, delay, nil
}

// P2PExchange holds the two timestamps of a peer-delay round: T1 departure
// of Pdelay_Req, T4 arrival of the corresponding Pdelay_Resp, plus the
// responder's own turnaround (T3 − T2, reported via correctionField or a
// Pdelay_Resp_Follow_Up) expressed directly as a duration.
type P2PExchange struct {
	T1, T4     time.Time
	Turnaround time.Duration
}

// Complete reports whether both endpoint timestamps have been recorded.
func (p P2PExchange) Complete() bool {
	return !p.T1.IsZero() && !p.T4.IsZero()
}

// ComputeP2P implements the peer-to-peer delay mechanism: meanPathDelay =
// ((T4 − T1) − turnaround) / 2. P2P has no offset term of its own; offset
// still comes from Sync/Follow_Up exchanges, using this path delay in place
// of the E2E one.
func ComputeP2P(p P2PExchange) (delayNs float64, err error) {
	if !p.Complete() {
		return 0, ErrIncompleteExchange
	}
	roundTrip := float64(p.T4.Sub(p.T1)) - float64(p.Turnaround)
	delay := roundTrip / 2
	if delay <= 0 {
		return delay, ErrNegativeMeanPathDelay
	}
	return delay, nil
}

// DefaultWindowSize is the sliding-window length (60 samples) of the
// path-delay window behind FilteredDelayMedian.
const DefaultWindowSize = 60

// Stats accumulates min/max/avg/variance over every accepted sample since it
// was created, using an online Welford accumulator; these figures are not
// windowed. Only the path delay also goes into a bounded window, which feeds
// the median filter.
type Stats struct {
	offsetW *welford.Stats
	delayW  *welford.Stats

	offsetMin, offsetMax float64
	delayMin, delayMax   float64
	count                uint64

	delayWindow *slidingWindow
}

// NewStats creates a Stats tracker. windowSize of 0 uses DefaultWindowSize.
func NewStats(windowSize int) *Stats {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Stats{
		offsetW:     welford.New(),
		delayW:      welford.New(),
		delayWindow: newSlidingWindow(windowSize),
	}
}

// Add records one accepted sample.
func (s *Stats) Add(offsetNs, delayNs float64) {
	s.offsetW.Add(offsetNs)
	s.delayW.Add(delayNs)
	s.delayWindow.add(delayNs)
	if s.count == 0 || offsetNs < s.offsetMin {
		s.offsetMin = offsetNs
	}
	if s.count == 0 || offsetNs > s.offsetMax {
		s.offsetMax = offsetNs
	}
	if s.count == 0 || delayNs < s.delayMin {
		s.delayMin = delayNs
	}
	if s.count == 0 || delayNs > s.delayMax {
		s.delayMax = delayNs
	}
	s.count++
}

// Snapshot is a point-in-time read of the rolling statistics.
type Snapshot struct {
	Count                        uint64
	OffsetMean, OffsetStddev     float64
	OffsetMin, OffsetMax         float64
	DelayMean, DelayStddev       float64
	DelayMin, DelayMax           float64
	FilteredDelayMedian          float64
}

// Snapshot returns the current rolling statistics.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Count:                s.count,
		OffsetMean:           s.offsetW.Mean(),
		OffsetStddev:         s.offsetW.Stddev(),
		OffsetMin:            s.offsetMin,
		OffsetMax:            s.offsetMax,
		DelayMean:            s.delayW.Mean(),
		DelayStddev:          s.delayW.Stddev(),
		DelayMin:             s.delayMin,
		DelayMax:             s.delayMax,
		FilteredDelayMedian:  s.delayWindow.median(),
	}
}
