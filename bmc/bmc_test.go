package bmc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ptp "github.com/ptpsync/ptpcore/protocol"
)

func vector(prio1 uint8, class ptp.ClockClass, id ptp.ClockIdentity) ptp.PriorityVector {
	return ptp.PriorityVector{
		Priority1:      prio1,
		ClockClass:     class,
		ClockAccuracy:  ptp.ClockAccuracyNanosecond100,
		Priority2:      128,
		Identity:       id,
		StepsRemoved:   0,
		SenderIdentity: ptp.PortIdentity{ClockIdentity: id, PortNumber: 1},
	}
}

func TestCompareLexicographicOrder(t *testing.T) {
	better := vector(100, 6, 1)
	worse := vector(200, 6, 1)
	assert.Equal(t, ABetter, Compare(better, worse))
	assert.Equal(t, BBetter, Compare(worse, better))

	// tie on Priority1, resolved by ClockClass
	a := vector(128, 6, 1)
	b := vector(128, 13, 1)
	assert.Equal(t, ABetter, Compare(a, b))
}

func TestCompareFallsThroughToIdentityAndStepsRemoved(t *testing.T) {
	a := vector(128, 6, 1)
	b := vector(128, 6, 2)
	a.ClockAccuracy, b.ClockAccuracy = ptp.ClockAccuracyNanosecond100, ptp.ClockAccuracyNanosecond100
	a.OffsetScaledLogVariance, b.OffsetScaledLogVariance = 100, 100
	assert.Equal(t, ABetter, Compare(a, b)) // identity 1 < 2

	c := vector(128, 6, 1)
	d := vector(128, 6, 1)
	d.StepsRemoved = 1
	assert.Equal(t, ABetter, Compare(c, d))
}

func TestCompareEqualVectors(t *testing.T) {
	a := vector(128, 6, 1)
	b := vector(128, 6, 1)
	assert.Equal(t, Equal, Compare(a, b))
}

func TestForceTieOverridesComparison(t *testing.T) {
	defer ClearForcedTie()
	ForceTie(true)
	a := vector(1, 6, 1)
	b := vector(255, 13, 2)
	assert.Equal(t, Equal, Compare(a, b))
	ForceTie(false)
	assert.Equal(t, ABetter, Compare(a, b))
}

func TestBestPicksStrictWinnerAmongCandidates(t *testing.T) {
	local := vector(200, 6, 99)
	candidates := []ptp.PriorityVector{
		vector(150, 6, 1),
		vector(100, 6, 2), // best
		vector(180, 6, 3),
	}
	idx, outcome := Best(candidates, local)
	require.Equal(t, 1, idx)
	assert.Equal(t, OutcomeBest, outcome)
}

func TestBestReportsBeatenWhenLocalWins(t *testing.T) {
	local := vector(50, 6, 99)
	candidates := []ptp.PriorityVector{
		vector(150, 6, 1),
		vector(180, 6, 2),
	}
	_, outcome := Best(candidates, local)
	assert.Equal(t, OutcomeBeaten, outcome)
}

func TestBestReportsTiedWithLocal(t *testing.T) {
	local := vector(128, 6, 99)
	candidates := []ptp.PriorityVector{
		vector(200, 6, 1),
		{Priority1: 128, ClockClass: 6, ClockAccuracy: ptp.ClockAccuracyNanosecond100, Priority2: 128, Identity: 99, StepsRemoved: 0, SenderIdentity: ptp.PortIdentity{ClockIdentity: 1, PortNumber: 1}},
	}
	_, outcome := Best(candidates, local)
	assert.Equal(t, OutcomeTiedWithLocal, outcome)
}

func TestCompareAnnounceMatchesVectorCompare(t *testing.T) {
	a := ptp.AnnounceBody{GrandmasterPriority1: 100, GrandmasterClockQuality: ptp.ClockQuality{ClockClass: 6}, GrandmasterPriority2: 128, GrandmasterIdentity: 1}
	b := ptp.AnnounceBody{GrandmasterPriority1: 200, GrandmasterClockQuality: ptp.ClockQuality{ClockClass: 6}, GrandmasterPriority2: 128, GrandmasterIdentity: 2}
	senderA := ptp.PortIdentity{ClockIdentity: 1, PortNumber: 1}
	senderB := ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}
	assert.Equal(t, ABetter, CompareAnnounce(a, b, senderA, senderB))
}
