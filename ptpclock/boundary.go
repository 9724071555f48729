package ptpclock

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ptpsync/ptpcore/coordinator"
	"github.com/ptpsync/ptpcore/port"
	ptp "github.com/ptpsync/ptpcore/protocol"
)

// MaxPorts bounds how many ports a single BoundaryClock may own.
const MaxPorts = 32

// BoundaryClock owns several ports. It runs every port's state machine
// independently and does not copy the Slave port's parent data or steps
// removed into its Master ports; the boundary behavior is purely in how an embedder
// reads IsSynchronized()/HasSlavePort() to decide what time to serve on its
// Master ports, since each port's servo operates on its own HAL clock
// reference.
type BoundaryClock struct {
	ports []*port.Port
	coord *coordinator.Coordinator

	tickInterval time.Duration
}

// NewBoundaryClock wraps up to MaxPorts ports.
func NewBoundaryClock(ports []*port.Port) (*BoundaryClock, error) {
	if len(ports) == 0 {
		return nil, fmt.Errorf("boundary clock needs at least one port")
	}
	if len(ports) > MaxPorts {
		return nil, fmt.Errorf("boundary clock supports at most %d ports, got %d", MaxPorts, len(ports))
	}
	return &BoundaryClock{
		ports:        ports,
		coord:        coordinator.New(ports),
		tickInterval: coordinator.DefaultBMCATickInterval,
	}, nil
}

// Ports returns the clock's managed ports.
func (c *BoundaryClock) Ports() []*port.Port { return c.ports }

// Deliver routes one received wire message to every owned port.
func (c *BoundaryClock) Deliver(now time.Time, raw []byte) { c.coord.Deliver(now, raw) }

// HasMasterPort reports whether any port is currently Master or GrandMaster.
func (c *BoundaryClock) HasMasterPort() bool {
	for _, p := range c.ports {
		if p.State() == ptp.PortStateMaster || p.State() == ptp.PortStateGrandMaster {
			return true
		}
	}
	return false
}

// HasSlavePort reports whether any port is currently Slave.
func (c *BoundaryClock) HasSlavePort() bool {
	for _, p := range c.ports {
		if p.State() == ptp.PortStateSlave {
			return true
		}
	}
	return false
}

// IsSynchronized reports whether the clock has a Slave port locked to its
// source, which is the precondition for its Master ports to serve a
// traceable time.
func (c *BoundaryClock) IsSynchronized() bool {
	for _, p := range c.ports {
		if p.State() == ptp.PortStateSlave {
			return true
		}
	}
	return false
}

// Run ticks every owned port's state machine, via the shared coordinator,
// on tickInterval until ctx is cancelled.
func (c *BoundaryClock) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		ticker := time.NewTicker(c.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				if _, err := c.coord.Tick(now); err != nil {
					return err
				}
			}
		}
	})
	return eg.Wait()
}
