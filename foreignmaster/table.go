// Package foreignmaster implements the bounded foreign-master table a port
// keeps of the latest Announce seen from each distinct sender, modeled on the
// map-keyed-by-identity tracking style used for per-sequence measurement
// state in sptp/client and for per-client subscriptions in ptp4u/server.
package foreignmaster

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	ptp "github.com/ptpsync/ptpcore/protocol"
)

// DefaultCapacity is the default maximum number of distinct foreign masters
// tracked by a single port.
const DefaultCapacity = 16

// Table is a fixed-capacity collection of ForeignMasterEntry keyed by sender
// PortIdentity. It never grows past its configured capacity: once full, an
// Upsert for a new sender returns ErrFull instead of evicting anything.
type Table struct {
	capacity int
	order    []ptp.PortIdentity
	entries  map[ptp.PortIdentity]*ptp.ForeignMasterEntry

	evictions uint64
}

// ErrFull is returned by Upsert when adding a new sender would exceed the
// table's capacity.
var ErrFull = fmt.Errorf("foreign-master table is full")

// New creates a Table with the given capacity. A capacity of 0 uses
// DefaultCapacity.
func New(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{
		capacity: capacity,
		entries:  make(map[ptp.PortIdentity]*ptp.ForeignMasterEntry, capacity),
	}
}

// Upsert records a newly received Announce from sender. If sender is already
// tracked, its entry is updated in place (vector, message count, LastSeen).
// If sender is new and the table is at capacity, ErrFull is returned, a
// warning is logged, and the eviction counter is incremented — the table
// never silently drops an existing entry to make room.
func (t *Table) Upsert(sender ptp.PortIdentity, body ptp.AnnounceBody, now time.Time) error {
	if e, ok := t.entries[sender]; ok {
		e.Vector = ptp.VectorFromAnnounce(body, sender)
		e.Announce = body
		e.MessageCount++
		e.LastSeen = now
		return nil
	}
	if len(t.entries) >= t.capacity {
		t.evictions++
		log.Warningf("foreign-master table at capacity %d, rejecting new sender %s", t.capacity, sender)
		return ErrFull
	}
	t.entries[sender] = &ptp.ForeignMasterEntry{
		SenderIdentity: sender,
		Vector:         ptp.VectorFromAnnounce(body, sender),
		Announce:       body,
		MessageCount:   1,
		FirstSeen:      now,
		LastSeen:       now,
	}
	t.order = append(t.order, sender)
	return nil
}

// Prune removes entries whose LastSeen is older than now.Add(-maxAge).
// Returns the number of entries removed.
func (t *Table) Prune(now time.Time, maxAge time.Duration) int {
	removed := 0
	kept := t.order[:0]
	for _, id := range t.order {
		e, ok := t.entries[id]
		if !ok {
			continue
		}
		if now.Sub(e.LastSeen) > maxAge {
			delete(t.entries, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
	return removed
}

// Clear removes every entry, used when the port's Announce-receipt timeout
// fires so stale foreign masters can't win a subsequent BMCA run.
func (t *Table) Clear() {
	t.entries = make(map[ptp.PortIdentity]*ptp.ForeignMasterEntry, t.capacity)
	t.order = nil
}

// Len returns the number of tracked foreign masters.
func (t *Table) Len() int { return len(t.entries) }

// Evictions returns the number of Upsert calls rejected due to capacity.
func (t *Table) Evictions() uint64 { return t.evictions }

// Vectors returns the PriorityVector of every tracked entry, in insertion
// order, for feeding to the BMCA comparator.
func (t *Table) Vectors() []ptp.PriorityVector {
	vectors := make([]ptp.PriorityVector, 0, len(t.order))
	for _, id := range t.order {
		if e, ok := t.entries[id]; ok {
			vectors = append(vectors, e.Vector)
		}
	}
	return vectors
}

// Entries returns every tracked entry, in insertion order.
func (t *Table) Entries() []*ptp.ForeignMasterEntry {
	out := make([]*ptp.ForeignMasterEntry, 0, len(t.order))
	for _, id := range t.order {
		if e, ok := t.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Get returns the entry for sender, if tracked.
func (t *Table) Get(sender ptp.PortIdentity) (*ptp.ForeignMasterEntry, bool) {
	e, ok := t.entries[sender]
	return e, ok
}
