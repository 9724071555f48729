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

// Package servo implements the PI (proportional-integral) clock servo: the
// control law and lock-state FSM are adapted from this repository's own
// Kp/Ki/anti-windup PI servo, restructured around an explicit Uninitialized
// -> Unlocked -> Locking -> Locked FSM (with a Holdover excursion on update
// timeout) instead of the count-staged internal state it started from.
package servo

import "time"

// State is the lock state of the servo.
type State uint8

// Lock states, in the order a cold-started servo normally passes through
// them.
const (
	StateUninitialized State = iota
	StateUnlocked
	StateLocking
	StateLocked
	StateHoldover
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateUnlocked:
		return "UNLOCKED"
	case StateLocking:
		return "LOCKING"
	case StateLocked:
		return "LOCKED"
	case StateHoldover:
		return "HOLDOVER"
	}
	return "UNKNOWN"
}

// Config holds the servo's tunable parameters. Field names and defaults
// follow the profile field list: Kp/Ki for the control law,
// MaxFreqAdjustmentPPB as the hard clamp, StepThresholdNs as the
// step-vs-slew decision boundary, LockThresholdNs/SamplesForLock as the
// Locked entry criteria, and HoldoverTimeoutMs as the time since the last
// accepted sample after which a previously Locked servo is declared in
// Holdover.
type Config struct {
	Kp                   float64
	Ki                   float64
	MaxFreqAdjustmentPPB float64
	StepThresholdNs       float64
	LockThresholdNs       float64
	LockingThresholdNs    float64
	UnlockThresholdNs     float64
	SamplesForLock        int
	HoldoverTimeoutMs     int64
	// MaxFreqChangePerSamplePPB rate-limits how much the frequency output may
	// move between two consecutive samples, independent of the integrator
	// clamp. Zero disables rate limiting.
	MaxFreqChangePerSamplePPB float64
}

// DefaultConfig returns the profile defaults: ±100000ppb max adjustment,
// step threshold 128ms, lock threshold 1µs sustained for 16 samples,
// locking threshold 100µs, unlock threshold 250µs, 5s holdover timeout.
func DefaultConfig() Config {
	return Config{
		Kp:                        0.7,
		Ki:                        0.3,
		MaxFreqAdjustmentPPB:      100000,
		StepThresholdNs:           128_000_000,
		LockThresholdNs:           1_000,
		LockingThresholdNs:        100_000,
		UnlockThresholdNs:         250_000,
		SamplesForLock:            16,
		HoldoverTimeoutMs:         5_000,
		MaxFreqChangePerSamplePPB: 0,
	}
}

// Result is what Sample returns: either a one-shot step of the clock, or a
// frequency adjustment to apply continuously until the next sample.
type Result struct {
	Step         bool
	StepOffsetNs float64
	FreqPPB      float64
	State        State
}

// Servo is a single PI clock servo instance. It holds no global state: every
// field that affects its behavior lives on the struct, so multiple
// independent servos (e.g. one per domain) never interfere with each other.
type Servo struct {
	cfg Config

	state          State
	integral       float64
	lastFreqPPB    float64
	lockStreak     int
	lastSampleTime time.Time
	initialized    bool
}

// New creates a Servo with the given configuration.
func New(cfg Config) *Servo {
	return &Servo{cfg: cfg, state: StateUninitialized}
}

// State returns the servo's current lock state.
func (s *Servo) State() State { return s.state }

// Reset returns the servo to StateUninitialized and clears the integrator,
// used when a port re-enters Uncalibrated after losing its sync source.
func (s *Servo) Reset() {
	s.state = StateUninitialized
	s.integral = 0
	s.lastFreqPPB = 0
	s.lockStreak = 0
	s.initialized = false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Sample feeds one accepted offset measurement (in nanoseconds, slave minus
// master) into the servo and returns the correction to apply.
//
// Large-offset policy: if |offset| exceeds StepThresholdNs and the servo is
// not currently Locked, the clock should be stepped directly (Result.Step)
// and the integrator is cleared rather than fed a sample that would saturate
// it. Once Locked, large offsets are still slewed rather than stepped, since
// a step would throw away lock for a condition that is more likely a single
// bad measurement than a real clock jump.
func (s *Servo) Sample(offsetNs float64, now time.Time) Result {
	s.lastSampleTime = now

	if abs(offsetNs) > s.cfg.StepThresholdNs && s.state != StateLocked {
		s.integral = 0
		s.lockStreak = 0
		s.state = StateUnlocked
		s.initialized = true
		return Result{Step: true, StepOffsetNs: offsetNs, State: s.state}
	}

	freq := s.controlLaw(offsetNs)
	s.updateLockState(offsetNs)
	s.initialized = true
	s.lastFreqPPB = freq
	return Result{FreqPPB: freq, State: s.state}
}

// controlLaw applies u(k) = Kp*e(k) + Ki*sum(e), clamped to
// ±MaxFreqAdjustmentPPB, with anti-windup: the integral only accumulates
// when doing so would not push the clamped output further past the clamp,
// and is itself kept within the range that alone cannot exceed the clamp.
func (s *Servo) controlLaw(offsetNs float64) float64 {
	maxFreq := s.cfg.MaxFreqAdjustmentPPB

	proposed := s.integral + offsetNs*s.cfg.Ki
	proposedFreq := s.cfg.Kp*offsetNs + proposed
	if proposedFreq >= -maxFreq && proposedFreq <= maxFreq {
		s.integral = proposed
	}
	// anti-windup clamp on the integral term itself, independent of whether
	// this sample's proposal saturated the output
	maxIntegral := maxFreq
	s.integral = clamp(s.integral, -maxIntegral, maxIntegral)

	freq := s.cfg.Kp*offsetNs + s.integral
	freq = clamp(freq, -maxFreq, maxFreq)

	if s.cfg.MaxFreqChangePerSamplePPB > 0 && s.initialized {
		delta := clamp(freq-s.lastFreqPPB, -s.cfg.MaxFreqChangePerSamplePPB, s.cfg.MaxFreqChangePerSamplePPB)
		freq = s.lastFreqPPB + delta
	}
	return freq
}

func (s *Servo) updateLockState(offsetNs float64) {
	a := abs(offsetNs)
	switch {
	case a <= s.cfg.LockThresholdNs:
		s.lockStreak++
		if s.lockStreak >= s.cfg.SamplesForLock {
			s.state = StateLocked
		} else if s.state != StateLocked {
			s.state = StateLocking
		}
	case a <= s.cfg.LockingThresholdNs:
		s.lockStreak = 0
		if s.state != StateLocked {
			s.state = StateLocking
		}
	case a > s.cfg.UnlockThresholdNs:
		s.lockStreak = 0
		s.state = StateUnlocked
	default:
		s.lockStreak = 0
		if s.state == StateLocked {
			// between Locking and Unlock thresholds: stay Locked, a single
			// noisy sample shouldn't drop lock
			return
		}
		s.state = StateLocking
	}
}

// Tick lets the coordinator check for holdover without waiting for the next
// sample: if the servo was Locked and more than HoldoverTimeoutMs has
// elapsed since the last accepted sample, it transitions to Holdover.
func (s *Servo) Tick(now time.Time) State {
	if s.state == StateLocked && s.initialized {
		elapsed := now.Sub(s.lastSampleTime)
		if elapsed.Milliseconds() > s.cfg.HoldoverTimeoutMs {
			s.state = StateHoldover
		}
	}
	return s.state
}

// LastFreqPPB returns the most recently applied frequency adjustment, held
// steady while in Holdover.
func (s *Servo) LastFreqPPB() float64 { return s.lastFreqPPB }
