/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package bmc implements the Best Master Clock Algorithm comparator: a pure,
// stateless function over PriorityVectors with no knowledge of ports,
// sockets, or time.
package bmc

import (
	ptp "github.com/ptpsync/ptpcore/protocol"
)

// Result is the outcome of comparing two priority vectors.
type Result int8

const (
	// ABetter means the first vector wins.
	ABetter Result = 1
	// Equal means the two vectors compare identical across all seven fields.
	Equal Result = 0
	// BBetter means the second vector wins.
	BBetter Result = -1
)

// forcedTie, when non-nil, overrides the outcome of Compare. It exists only
// for tests that need to exercise the Listening/Passive tie path without
// constructing two genuinely identical vectors.
var forcedTie *bool

// ForceTie installs a fault-injection hook that makes every subsequent
// Compare call report Equal regardless of its inputs. Passing false restores
// normal comparison. Intended for tests only.
func ForceTie(tie bool) {
	forcedTie = &tie
}

// ClearForcedTie removes the fault-injection hook installed by ForceTie.
func ClearForcedTie() {
	forcedTie = nil
}

// Compare orders two priority vectors lexicographically over the seven
// fields defined by the standard: Priority1, ClockClass, ClockAccuracy,
// OffsetScaledLogVariance, Priority2, Identity, StepsRemoved. It is pure: no
// global state is consulted besides the ForceTie test hook.
func Compare(a, b ptp.PriorityVector) Result {
	if forcedTie != nil && *forcedTie {
		return Equal
	}
	switch {
	case a.Priority1 < b.Priority1:
		return ABetter
	case a.Priority1 > b.Priority1:
		return BBetter
	}
	switch {
	case a.ClockClass < b.ClockClass:
		return ABetter
	case a.ClockClass > b.ClockClass:
		return BBetter
	}
	switch {
	case a.ClockAccuracy < b.ClockAccuracy:
		return ABetter
	case a.ClockAccuracy > b.ClockAccuracy:
		return BBetter
	}
	switch {
	case a.OffsetScaledLogVariance < b.OffsetScaledLogVariance:
		return ABetter
	case a.OffsetScaledLogVariance > b.OffsetScaledLogVariance:
		return BBetter
	}
	switch {
	case a.Priority2 < b.Priority2:
		return ABetter
	case a.Priority2 > b.Priority2:
		return BBetter
	}
	switch {
	case a.Identity < b.Identity:
		return ABetter
	case a.Identity > b.Identity:
		return BBetter
	}
	switch {
	case a.StepsRemoved < b.StepsRemoved:
		return ABetter
	case a.StepsRemoved > b.StepsRemoved:
		return BBetter
	}
	return Equal
}

// Outcome is the BMCA decision for a single candidate against the rest of a
// pool: whether it was the unique best, tied with the local vector (and
// therefore Passive per the tie policy), or beaten outright.
type Outcome int8

// Possible BMCA outcomes for a candidate.
const (
	OutcomeBest Outcome = iota
	OutcomeTiedWithLocal
	OutcomeBeaten
)

// Best returns the index of the best vector among candidates, and the
// outcome of comparing it against local. Best never runs with an empty
// candidate list — callers must check len(candidates) > 0 first, since BMCA
// never executes with nothing to compare.
//
// Tie policy: a tie between two foreign candidates is broken by taking the
// first one encountered (stable, deterministic); a tie between the winning
// foreign candidate and local is reported as OutcomeTiedWithLocal, which the
// port state machine maps to the Passive state rather than Master or Slave.
func Best(candidates []ptp.PriorityVector, local ptp.PriorityVector) (int, Outcome) {
	bestIdx := 0
	best := candidates[0]
	for i := 1; i < len(candidates); i++ {
		if Compare(candidates[i], best) == ABetter {
			best = candidates[i]
			bestIdx = i
		}
	}
	switch Compare(best, local) {
	case ABetter:
		return bestIdx, OutcomeBest
	case Equal:
		return bestIdx, OutcomeTiedWithLocal
	default:
		return bestIdx, OutcomeBeaten
	}
}
