// Package coordinator ties one or more port state machines together into a
// running clock: it decodes wire bytes into packets and routes them,
// classifies synchronization health from CurrentDataSet readings, and
// emits a rate-limited heartbeat. It plays the role sptp/client's
// runResult/loop and ptp4l's main run loop play in the teacher, generalized
// from a single unicast client into a coordinator over an arbitrary set of
// ports.
package coordinator

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ptpsync/ptpcore/port"
	ptp "github.com/ptpsync/ptpcore/protocol"
)

// DefaultBMCATickInterval is how often a coordinator re-evaluates timeouts
// and periodic sends when nothing else is driving Tick.
const DefaultBMCATickInterval = 1 * time.Second

// Health thresholds on |offset from master|, in nanoseconds, used to
// classify synchronization quality.
const (
	HealthySyncThresholdNs     = 1_000    // 1us
	ConvergingSyncThresholdNs  = 10_000   // 10us
	DegradedSyncThresholdNs    = 100_000  // 100us
)

// Coordinator runs Tick across a set of ports, routes decoded packets to the
// right one, and derives a HealthStatus from their CurrentDataSets.
type Coordinator struct {
	ports []*port.Port

	tickInterval time.Duration

	lastHeartbeat time.Time
	heartbeatMin  time.Duration

	counters struct {
		ticks          uint64
		decodeErrors   uint64
		unsupportedMsg uint64
		heartbeats     uint64
	}
}

// New creates a Coordinator over the given ports.
func New(ports []*port.Port) *Coordinator {
	return &Coordinator{
		ports:        ports,
		tickInterval: DefaultBMCATickInterval,
		heartbeatMin: 1 * time.Second,
	}
}

// Ports returns the coordinator's managed ports.
func (c *Coordinator) Ports() []*port.Port { return c.ports }

// Counters returns the coordinator-level observability counters: total
// ticks driven, messages dropped for a decode failure, messages dropped
// because their type isn't implemented, and heartbeats emitted.
func (c *Coordinator) Counters() (ticks, decodeErrors, unsupportedMsg, heartbeats uint64) {
	return c.counters.ticks, c.counters.decodeErrors, c.counters.unsupportedMsg, c.counters.heartbeats
}

// Deliver decodes one wire message and routes it to the port it identifies
// itself as addressed to by matching SourcePortIdentity against each port's
// own identity is not meaningful for receive — instead every port sees every
// message, matching the broadcast nature of PTP multicast on a shared
// segment; a port that isn't interested (wrong domain, etc.) drops it in
// its own validate step.
//
// A decode failure is swallowed into the decodeErrors counter rather than
// returned, except that ErrUnsupportedMessage is additionally counted
// separately so an operator can distinguish "garbage on the wire" from
// "a well-formed message type we don't implement yet."
func (c *Coordinator) Deliver(now time.Time, raw []byte) {
	pkt, err := ptp.DecodePacket(raw)
	if err != nil {
		if errors.Is(err, ptp.ErrUnsupportedMessage) {
			c.counters.unsupportedMsg++
			log.Debugf("coordinator: %v", err)
			return
		}
		c.counters.decodeErrors++
		log.Warningf("coordinator: decode failed: %v", err)
		return
	}
	header, err := headerOf(pkt)
	if err != nil {
		c.counters.decodeErrors++
		return
	}
	for _, p := range c.ports {
		if err := p.ProcessMessage(now, pkt, header); err != nil {
			log.Warningf("coordinator: port %s failed to process message: %v", p.PortDataSet().PortIdentity, err)
		}
	}
}

// headerOf extracts the common Header embedded in any concrete Packet, the
// way Header.MessageType already relies on embedding to read the type.
func headerOf(pkt ptp.Packet) (ptp.Header, error) {
	switch m := pkt.(type) {
	case *ptp.Announce:
		return m.Header, nil
	case *ptp.SyncDelayReq:
		return m.Header, nil
	case *ptp.FollowUp:
		return m.Header, nil
	case *ptp.DelayResp:
		return m.Header, nil
	case *ptp.PDelayReq:
		return m.Header, nil
	case *ptp.PDelayResp:
		return m.Header, nil
	case *ptp.PDelayRespFollowUp:
		return m.Header, nil
	case *ptp.Signaling:
		return m.Header, nil
	default:
		return ptp.Header{}, fmt.Errorf("unrecognized packet type %T", pkt)
	}
}

// Tick drives every managed port's Tick and, no more than once per second
// and never on the very first call at t=0 relative to coordinator start,
// emits a HealthStatus heartbeat summarizing the worst port.
func (c *Coordinator) Tick(now time.Time) (*ptp.HealthStatus, error) {
	c.counters.ticks++
	for _, p := range c.ports {
		if err := p.Tick(now); err != nil {
			return nil, fmt.Errorf("port %s tick: %w", p.PortDataSet().PortIdentity, err)
		}
	}
	if c.lastHeartbeat.IsZero() {
		c.lastHeartbeat = now
	}
	if now.Sub(c.lastHeartbeat) < c.heartbeatMin {
		return nil, nil
	}
	c.lastHeartbeat = now
	c.counters.heartbeats++
	status := c.classify(now)
	return &status, nil
}

// classify picks the worst-synchronized port's CurrentDataSet and maps its
// offset magnitude to a HealthState.
func (c *Coordinator) classify(now time.Time) ptp.HealthStatus {
	var worst ptp.HealthState
	var worstOffset, worstDelay ptp.TimeInterval
	var worstState ptp.PortState
	for i, p := range c.ports {
		cds := p.CurrentDataSet()
		state := classifyOffset(cds.OffsetFromMaster.Nanoseconds())
		if i == 0 || state > worst {
			worst = state
			worstOffset = cds.OffsetFromMaster
			worstDelay = cds.MeanPathDelay
			worstState = p.State()
		}
	}
	return ptp.HealthStatus{
		State:     worst,
		Offset:    worstOffset,
		Delay:     worstDelay,
		PortState: worstState,
		Timestamp: now,
	}
}

func classifyOffset(offsetNs float64) ptp.HealthState {
	a := offsetNs
	if a < 0 {
		a = -a
	}
	switch {
	case a <= HealthySyncThresholdNs:
		return ptp.HealthSynchronized
	case a <= ConvergingSyncThresholdNs:
		return ptp.HealthConverging
	case a <= DegradedSyncThresholdNs:
		return ptp.HealthDegraded
	default:
		return ptp.HealthCritical
	}
}
