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

// Package config holds per-profile tunables for a port/clock, loaded from
// YAML the way sptp/client.Config is loaded, via gopkg.in/yaml.v2.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	ptp "github.com/ptpsync/ptpcore/protocol"
)

// ProfileName selects one of the predefined profiles.
type ProfileName string

// Supported profiles.
const (
	ProfileDefault1588 ProfileName = "default-1588"
	ProfileGPTP        ProfileName = "gptp"
	ProfileAES67        ProfileName = "aes67"
	ProfileIndustrial   ProfileName = "industrial"
)

// ServoConfig carries the PI servo tunables, yaml-tagged the way
// MeasurementConfig's fields are in sptp/client/config.go.
type ServoConfig struct {
	Kp                    float64       `yaml:"kp"`
	Ki                    float64       `yaml:"ki"`
	MaxFreqAdjustmentPPB  float64       `yaml:"max_freq_adjustment_ppb"`
	StepThreshold         time.Duration `yaml:"step_threshold"`
	LockThreshold         time.Duration `yaml:"lock_threshold"`
	SamplesForLock        int           `yaml:"samples_for_lock"`
	HoldoverTimeout       time.Duration `yaml:"holdover_timeout"`
}

// SyncConfig carries sync-coordinator tunables.
type SyncConfig struct {
	SamplingInterval     time.Duration `yaml:"sampling_interval"`
	VarianceWindowSamples int          `yaml:"variance_window_samples"`
}

// Config is the full profile-driven configuration of a single port.
type Config struct {
	DomainNumber            uint8         `yaml:"domain_number"`
	Priority1               uint8         `yaml:"priority1"`
	Priority2               uint8         `yaml:"priority2"`
	LogAnnounceInterval     int8          `yaml:"log_announce_interval"`
	LogSyncInterval         int8          `yaml:"log_sync_interval"`
	LogMinDelayReqInterval  int8          `yaml:"log_min_delay_req_interval"`
	AnnounceReceiptTimeout  uint8         `yaml:"announce_receipt_timeout"`
	DelayMechanism          string        `yaml:"delay_mechanism"` // "E2E" or "P2P"
	Profile                 ProfileName   `yaml:"profile"`
	StrictDomainChecking    bool          `yaml:"strict_domain_checking"`
	ForeignMasterCapacity   int           `yaml:"foreign_master_capacity"`
	Servo                   ServoConfig   `yaml:"servo"`
	Sync                    SyncConfig    `yaml:"sync"`
}

// DelayMechanismValue returns the configured delay mechanism as a protocol enum,
// defaulting to E2E for anything other than an explicit "P2P".
func (c Config) DelayMechanismValue() ptp.DelayMechanism {
	if c.DelayMechanism == "P2P" {
		return ptp.DelayMechanismP2P
	}
	return ptp.DelayMechanismE2E
}

// Default returns the Default1588 profile's field values.
func Default() Config {
	return Config{
		DomainNumber:           0,
		Priority1:              128,
		Priority2:              128,
		LogAnnounceInterval:    1,
		LogSyncInterval:        0,
		LogMinDelayReqInterval: 0,
		AnnounceReceiptTimeout: 3,
		DelayMechanism:         "E2E",
		Profile:                ProfileDefault1588,
		StrictDomainChecking:   true,
		ForeignMasterCapacity:  16,
		Servo: ServoConfig{
			Kp:                   0.7,
			Ki:                   0.3,
			MaxFreqAdjustmentPPB: 100000,
			StepThreshold:        128 * time.Millisecond,
			LockThreshold:        1 * time.Microsecond,
			SamplesForLock:       16,
			HoldoverTimeout:      5 * time.Second,
		},
		Sync: SyncConfig{
			SamplingInterval:      1 * time.Second,
			VarianceWindowSamples: 60,
		},
	}
}

// GPTP returns the gPTP profile's field values: faster intervals, P2P delay
// mechanism, domain 0.
func GPTP() Config {
	c := Default()
	c.Profile = ProfileGPTP
	c.LogAnnounceInterval = 0
	c.LogSyncInterval = -3
	c.DelayMechanism = "P2P"
	c.AnnounceReceiptTimeout = 3
	return c
}

// AES67 returns the AES67 media-profile values: domain 0, E2E, priority2
// used to rank media clocks.
func AES67() Config {
	c := Default()
	c.Profile = ProfileAES67
	c.LogSyncInterval = -3
	c.DelayMechanism = "E2E"
	return c
}

// Industrial returns a profile tuned for industrial Ethernet deployments:
// faster sync, P2P, tighter announce timeout.
func Industrial() Config {
	c := Default()
	c.Profile = ProfileIndustrial
	c.LogSyncInterval = -4
	c.DelayMechanism = "P2P"
	c.AnnounceReceiptTimeout = 2
	return c
}

// ByName resolves one of the four named profiles.
func ByName(name ProfileName) (Config, error) {
	switch name {
	case ProfileDefault1588, "":
		return Default(), nil
	case ProfileGPTP:
		return GPTP(), nil
	case ProfileAES67:
		return AES67(), nil
	case ProfileIndustrial:
		return Industrial(), nil
	default:
		return Config{}, fmt.Errorf("unknown profile %q", name)
	}
}

// ReadConfig reads a Config from a YAML file, layered on top of the
// Default1588 profile so a config file only needs to override fields it
// cares about.
func ReadConfig(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &c, nil
}
