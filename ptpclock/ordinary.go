// Package ptpclock assembles port state machines into the three clock
// container types the standard defines: OrdinaryClock (one port),
// BoundaryClock (many), and TransparentClock (none — it only relays,
// updating correctionField as it goes). The Run(ctx) convenience loops are
// grounded on sptp/client.Sptp's errgroup-based run loop, generalized from
// a single unicast session into a generic port-ticking driver.
package ptpclock

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ptpsync/ptpcore/coordinator"
	"github.com/ptpsync/ptpcore/port"
)

// OrdinaryClock owns exactly one port and is either the grandmaster or a
// slave to one, never both at once.
type OrdinaryClock struct {
	port  *port.Port
	coord *coordinator.Coordinator

	tickInterval time.Duration
}

// NewOrdinaryClock wraps a single already-constructed port.
func NewOrdinaryClock(p *port.Port) *OrdinaryClock {
	return &OrdinaryClock{
		port:         p,
		coord:        coordinator.New([]*port.Port{p}),
		tickInterval: coordinator.DefaultBMCATickInterval,
	}
}

// Port returns the underlying port.
func (c *OrdinaryClock) Port() *port.Port { return c.port }

// Deliver routes one received wire message to the port.
func (c *OrdinaryClock) Deliver(now time.Time, raw []byte) { c.coord.Deliver(now, raw) }

// Run ticks the clock on tickInterval until ctx is cancelled. The returned
// error is the first non-nil error any tick produced, or ctx.Err() on
// cancellation.
func (c *OrdinaryClock) Run(ctx context.Context) error {
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
