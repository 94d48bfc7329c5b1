// Package neighbor provides a bounded in-memory MAC neighbor table keyed by
// extended address, and a MAC device descriptor table holding per-device
// frame counters and key material.
//
// Entries are returned by pointer and mutated in place by the caller. The
// table is not safe for concurrent use; the bootstrap engine drives it from
// its event loop.
package neighbor

import (
	"errors"
	"time"

	"github.com/mash-protocol/mle-go/pkg/mle"
)

// ErrTableFull is returned when no free neighbor slot is available.
var ErrTableFull = errors.New("neighbor table full")

// DefaultCapacity matches a typical router child table plus router links.
const DefaultCapacity = 64

// DefaultTimeout is applied to entries without an explicit timeout.
const DefaultTimeout = 240 * time.Second

// Entry is one neighbor.
type Entry struct {
	Ext          mle.ExtAddress
	ShortAddress uint16
	Mode         mle.Mode
	Version      uint16

	LinkFrameCounter uint32
	MLEFrameCounter  uint32
	KeySequence      uint32
	KeyIndex         uint8

	// LinkMargin is the last measured margin in dB.
	LinkMargin uint8

	// TwoWay marks a link confirmed in both directions.
	TwoWay bool

	// ThreadNeighbor marks entries learned through MLE, as opposed to
	// plain MAC-level neighbors.
	ThreadNeighbor bool

	Timeout   time.Duration
	LastHeard time.Time
}

// Expired reports whether the entry has not been heard within its timeout.
func (e *Entry) Expired(now time.Time) bool {
	return e.Timeout > 0 && now.Sub(e.LastHeard) > e.Timeout
}

// Table is a bounded neighbor table.
type Table struct {
	capacity int
	entries  []*Entry
	now      func() time.Time
}

// NewTable creates a table holding at most capacity entries.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{capacity: capacity, now: time.Now}
}

// SetClock replaces the time source.
func (t *Table) SetClock(now func() time.Time) {
	t.now = now
}

// Lookup finds an entry by extended address.
func (t *Table) Lookup(ext mle.ExtAddress) (*Entry, bool) {
	for _, e := range t.entries {
		if e.Ext == ext {
			return e, true
		}
	}
	return nil, false
}

// LookupShort finds an entry by short address.
func (t *Table) LookupShort(short uint16) (*Entry, bool) {
	if short == mle.InvalidShortAddress {
		return nil, false
	}
	for _, e := range t.entries {
		if e.ShortAddress == short {
			return e, true
		}
	}
	return nil, false
}

// LookupOrCreate returns the entry for ext, creating it if needed. New
// entries start with an invalid short address and the default timeout.
func (t *Table) LookupOrCreate(ext mle.ExtAddress) (*Entry, error) {
	if e, ok := t.Lookup(ext); ok {
		return e, nil
	}
	if len(t.entries) >= t.capacity {
		return nil, ErrTableFull
	}
	e := &Entry{
		Ext:          ext,
		ShortAddress: mle.InvalidShortAddress,
		Timeout:      DefaultTimeout,
		LastHeard:    t.now(),
	}
	t.entries = append(t.entries, e)
	return e, nil
}

// Refresh marks the entry as heard now.
func (t *Table) Refresh(ext mle.ExtAddress) {
	if e, ok := t.Lookup(ext); ok {
		e.LastHeard = t.now()
	}
}

// Remove deletes the entry for ext and reports whether one existed.
func (t *Table) Remove(ext mle.ExtAddress) bool {
	for i, e := range t.entries {
		if e.Ext == ext {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveExpired deletes entries whose timeout has elapsed and returns
// their addresses.
func (t *Table) RemoveExpired() []mle.ExtAddress {
	now := t.now()
	var gone []mle.ExtAddress
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.Expired(now) {
			gone = append(gone, e.Ext)
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
	return gone
}

// Clear removes all entries.
func (t *Table) Clear() {
	t.entries = nil
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns copies of all entries in insertion order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = *e
	}
	return out
}
