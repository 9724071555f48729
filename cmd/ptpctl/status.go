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

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ptpsync/ptpcore/config"
	"github.com/ptpsync/ptpcore/hal"
	"github.com/ptpsync/ptpcore/port"
	ptp "github.com/ptpsync/ptpcore/protocol"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the PortDataSet/CurrentDataSet of a demo port built from --profile",
	RunE:  runStatus,
}

// buildDemoPort constructs a single port against a Loopback HAL, the same
// fixture the package's own tests use, since the CLI has no real transport
// to attach to — it demonstrates the dataset read API, not a live daemon.
func buildDemoPort(profile string) (*port.Port, error) {
	cfg, err := config.ByName(config.ProfileName(profile))
	if err != nil {
		return nil, err
	}
	id := port.Identity{
		PortIdentity: ptp.PortIdentity{ClockIdentity: 0x001122fffe334455, PortNumber: 1},
		ClockQuality: ptp.ClockQuality{
			ClockClass:    248,
			ClockAccuracy: ptp.ClockAccuracyFromOffset(1 * time.Microsecond),
		},
		Priority1: cfg.Priority1,
		Priority2: cfg.Priority2,
	}
	caps := hal.NewLoopback(time.Now())
	return port.New(id, cfg, caps), nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	configureVerbosity()
	p, err := buildDemoPort(rootProfileFlag)
	if err != nil {
		return fmt.Errorf("building demo port: %w", err)
	}
	p.Initialize(time.Now(), nil)

	pds := p.PortDataSet()
	cds := p.CurrentDataSet()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"field", "value"})
	table.Append([]string{"portIdentity", pds.PortIdentity.String()})
	table.Append([]string{"portState", colorState(pds.PortState)})
	table.Append([]string{"delayMechanism", pds.DelayMechanism.String()})
	table.Append([]string{"logAnnounceInterval", fmt.Sprintf("%d", pds.LogAnnounceInterval)})
	table.Append([]string{"logSyncInterval", fmt.Sprintf("%d", pds.LogSyncInterval)})
	table.Append([]string{"offsetFromMaster(ns)", fmt.Sprintf("%.1f", cds.OffsetFromMaster.Nanoseconds())})
	table.Append([]string{"meanPathDelay(ns)", fmt.Sprintf("%.1f", cds.MeanPathDelay.Nanoseconds())})
	table.Render()
	return nil
}

func colorState(s ptp.PortState) string {
	switch s {
	case ptp.PortStateMaster, ptp.PortStateGrandMaster, ptp.PortStateSlave:
		return color.GreenString(s.String())
	case ptp.PortStateFaulty:
		return color.RedString(s.String())
	default:
		return color.YellowString(s.String())
	}
}
