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

package servo

import (
	"container/ring"
	"math"

	log "github.com/sirupsen/logrus"
)

// SpikeFilterConfig configures SpikeFilter's ring-buffer based outlier
// detection, adapted from this repository's PI servo filter: a bounded
// history of recent offset samples, with a sample flagged as a spike when it
// falls more than StddevFactor standard deviations from the running mean.
type SpikeFilterConfig struct {
	RingSize     int
	StddevFactor float64
}

// DefaultSpikeFilterConfig mirrors the defaults this servo's ancestor used:
// a 30-sample ring and a 3-sigma threshold.
func DefaultSpikeFilterConfig() SpikeFilterConfig {
	return SpikeFilterConfig{RingSize: 30, StddevFactor: 3.0}
}

// SpikeFilter flags offset samples that are statistical outliers relative to
// recent history. It is a standalone type: Servo.Sample does not consult it,
// so a caller that wants spikes kept out of the integrator checks IsSpike
// before calling Sample.
type SpikeFilter struct {
	cfg     SpikeFilterConfig
	samples *ring.Ring
	count   int
}

// NewSpikeFilter creates a SpikeFilter with the given configuration.
func NewSpikeFilter(cfg SpikeFilterConfig) *SpikeFilter {
	size := cfg.RingSize
	if size < 1 {
		size = 1
	}
	return &SpikeFilter{cfg: cfg, samples: ring.New(size)}
}

// IsSpike reports whether offsetNs is an outlier relative to the filter's
// history, without recording it. Call Add separately once the caller decides
// to keep the sample.
func (f *SpikeFilter) IsSpike(offsetNs float64) bool {
	if f.count < 2 {
		return false
	}
	mean, stddev := f.stats()
	if stddev == 0 {
		return false
	}
	return math.Abs(offsetNs-mean) > f.cfg.StddevFactor*stddev
}

// Add records offsetNs into the ring, overwriting the oldest sample once
// full.
func (f *SpikeFilter) Add(offsetNs float64) {
	f.samples.Value = offsetNs
	f.samples = f.samples.Next()
	if f.count < f.samples.Len() {
		f.count++
	}
}

// Reset clears the filter's history, logging at debug level since a reset
// mid-run usually follows a detected spike run or a servo Reset.
func (f *SpikeFilter) Reset() {
	log.Debugf("servo: resetting spike filter history")
	f.samples = ring.New(f.samples.Len())
	f.count = 0
}

func (f *SpikeFilter) stats() (mean, stddev float64) {
	sum := 0.0
	n := 0
	r := f.samples
	for i := 0; i < r.Len(); i++ {
		if r.Value != nil {
			sum += r.Value.(float64)
			n++
		}
		r = r.Next()
	}
	if n == 0 {
		return 0, 0
	}
	mean = sum / float64(n)

	varSum := 0.0
	r = f.samples
	for i := 0; i < r.Len(); i++ {
		if r.Value != nil {
			d := r.Value.(float64) - mean
			varSum += d * d
		}
		r = r.Next()
	}
	return mean, math.Sqrt(varSum / float64(n))
}
