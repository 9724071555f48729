package hal

import (
	"sync"
	"time"

	ptp "github.com/ptpsync/ptpcore/protocol"
)

// Loopback is an in-memory Capabilities fixture for tests and examples: it
// queues every Send* call instead of touching a socket, and exposes a
// settable fake clock instead of calling time.Now(). It is not a reference
// hardware implementation — only a contract fixture, the same role
// UDPConn/UDPConnWithTS fakes play in the teacher's client tests.
type Loopback struct {
	mu sync.Mutex

	clock      time.Time
	freqPPB    float64
	stepCount  int
	slewCount  int
	lastOffset int64

	Sent []any
}

// NewLoopback creates a Loopback fixture with its fake clock set to start.
func NewLoopback(start time.Time) *Loopback {
	return &Loopback{clock: start}
}

// Advance moves the fake clock forward by d.
func (l *Loopback) Advance(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = l.clock.Add(d)
}

// SetClock sets the fake clock to an absolute time.
func (l *Loopback) SetClock(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = t
}

func (l *Loopback) record(p any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Sent = append(l.Sent, p)
}

// SendAnnounce implements Capabilities.
func (l *Loopback) SendAnnounce(p *ptp.Announce) error { l.record(p); return nil }

// SendSync implements Capabilities.
func (l *Loopback) SendSync(p *ptp.SyncDelayReq) error { l.record(p); return nil }

// SendFollowUp implements Capabilities.
func (l *Loopback) SendFollowUp(p *ptp.FollowUp) error { l.record(p); return nil }

// SendDelayReq implements Capabilities.
func (l *Loopback) SendDelayReq(p *ptp.SyncDelayReq) error { l.record(p); return nil }

// SendDelayResp implements Capabilities.
func (l *Loopback) SendDelayResp(p *ptp.DelayResp) error { l.record(p); return nil }

// SendPDelayReq implements Capabilities.
func (l *Loopback) SendPDelayReq(p *ptp.PDelayReq) error { l.record(p); return nil }

// SendPDelayResp implements Capabilities.
func (l *Loopback) SendPDelayResp(p *ptp.PDelayResp) error { l.record(p); return nil }

// SendPDelayRespFollowUp implements Capabilities.
func (l *Loopback) SendPDelayRespFollowUp(p *ptp.PDelayRespFollowUp) error { l.record(p); return nil }

// GetTimestamp implements Capabilities using the fake clock.
func (l *Loopback) GetTimestamp() (ptp.Timestamp, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ptp.NewTimestamp(l.clock), nil
}

// AdjustClock implements Capabilities, recording step vs slew counts and the
// last requested offset for test assertions.
func (l *Loopback) AdjustClock(offsetNs int64, mode AdjustMode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastOffset = offsetNs
	if mode == AdjustStep {
		l.stepCount++
		l.clock = l.clock.Add(time.Duration(-offsetNs))
	} else {
		l.slewCount++
	}
	return nil
}

// AdjustFrequency implements Capabilities, recording the last requested ppb.
func (l *Loopback) AdjustFrequency(ppb float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.freqPPB = ppb
	return nil
}

// StepCount returns how many times AdjustClock was called with AdjustStep.
func (l *Loopback) StepCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stepCount
}

// SlewCount returns how many times AdjustClock was called with AdjustSlew.
func (l *Loopback) SlewCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slewCount
}

// FrequencyPPB returns the last frequency correction applied.
func (l *Loopback) FrequencyPPB() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.freqPPB
}
