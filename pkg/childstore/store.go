// Package childstore keeps the records a router needs to rebuild its child
// links after a restart: short address, frame counters and mode per child,
// keyed by extended address.
//
// The store is a fixed array of slots. A slot with a zero short address is
// free. There is no eviction: once all slots are used, new children are
// dropped.
package childstore

import (
	"errors"
	"fmt"

	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/neighbor"
)

// DefaultCapacity is the maximum child count of a router.
const DefaultCapacity = 32

// Record is a stored child.
type Record struct {
	LongAddr        mle.ExtAddress `json:"long_addr"`
	ShortAddr       uint16         `json:"short_addr"`
	MLEFrameCounter uint32         `json:"mle_frame_counter"`
	MACFrameCounter uint32         `json:"mac_frame_counter"`
	Mode            mle.Mode       `json:"mode"`
}

func (r Record) free() bool {
	return r.ShortAddr == 0
}

// Store is the child record array. It is not safe for concurrent use.
type Store struct {
	slots []Record
}

// New creates a store with capacity slots.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{slots: make([]Record, capacity)}
}

// Store saves r, overwriting the slot of the same child or taking the first
// free slot. It reports false when r was dropped: the store is full or r has
// a zero short address.
func (s *Store) Store(r Record) bool {
	if r.free() {
		return false
	}
	firstFree := -1
	for i := range s.slots {
		if s.slots[i].free() {
			if firstFree < 0 {
				firstFree = i
			}
			continue
		}
		if s.slots[i].LongAddr == r.LongAddr {
			s.slots[i] = r
			return true
		}
	}
	if firstFree < 0 {
		return false
	}
	s.slots[firstFree] = r
	return true
}

// Clear frees the slot of the child with long address addr.
func (s *Store) Clear(addr mle.ExtAddress) {
	for i := range s.slots {
		if !s.slots[i].free() && s.slots[i].LongAddr == addr {
			s.slots[i] = Record{}
			return
		}
	}
}

// Lookup returns the record of addr.
func (s *Store) Lookup(addr mle.ExtAddress) (Record, bool) {
	for _, r := range s.slots {
		if !r.free() && r.LongAddr == addr {
			return r, true
		}
	}
	return Record{}, false
}

// Records returns the used slots in slot order.
func (s *Store) Records() []Record {
	var out []Record
	for _, r := range s.slots {
		if !r.free() {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of used slots.
func (s *Store) Len() int {
	n := 0
	for _, r := range s.slots {
		if !r.free() {
			n++
		}
	}
	return n
}

// Capacity returns the number of slots.
func (s *Store) Capacity() int {
	return len(s.slots)
}

// Reset frees all slots.
func (s *Store) Reset() {
	clear(s.slots)
}

// NeighborTable is the part of the MAC neighbor table used to rebuild
// child links.
type NeighborTable interface {
	LookupOrCreate(ext mle.ExtAddress) (*neighbor.Entry, error)
}

// DeviceTable programs MAC device descriptors.
type DeviceTable interface {
	Program(d neighbor.Device)
}

// RebuildMLETable recreates a neighbor entry for every stored child and
// restores its short address, MLE frame counter and mode. When devices is
// not nil the stored MAC frame counter is programmed into it. Children that
// do not fit are skipped; the returned error lists them.
func (s *Store) RebuildMLETable(tbl NeighborTable, devices DeviceTable) (int, error) {
	var errs []error
	restored := 0
	for _, r := range s.slots {
		if r.free() {
			continue
		}
		e, err := tbl.LookupOrCreate(r.LongAddr)
		if err != nil {
			errs = append(errs, fmt.Errorf("child %s: %w", r.LongAddr, err))
			continue
		}
		e.ShortAddress = r.ShortAddr
		e.MLEFrameCounter = r.MLEFrameCounter
		e.LinkFrameCounter = r.MACFrameCounter
		e.Mode = r.Mode
		e.ThreadNeighbor = true
		if devices != nil {
			devices.Program(neighbor.Device{
				Ext:          r.LongAddr,
				ShortAddress: r.ShortAddr,
				FrameCounter: r.MACFrameCounter,
			})
		}
		restored++
	}
	return restored, errors.Join(errs...)
}
