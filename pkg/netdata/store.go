// Package netdata stores Thread network data and the active and pending
// operational datasets of one interface.
//
// The network data payload is kept opaque. Operational datasets are
// parsed only far enough to expose their channel and PAN id.
package netdata

import (
	"encoding/binary"
	"errors"

	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/serialnum"
)

// ErrStaleData is returned when committing network data that is not newer
// than the stored copy.
var ErrStaleData = errors.New("network data not newer")

// Dataset TLV types inside an operational dataset.
const (
	datasetChannel uint8 = 0
	datasetPANID   uint8 = 1
)

// Dataset is an operational dataset.
type Dataset struct {
	Timestamp mle.Timestamp
	Channel   mle.Channel
	PANID     uint16
	Raw       []byte
}

// ParseDataset builds a Dataset from its timestamp and raw TLVs.
func ParseDataset(ts mle.Timestamp, raw []byte) Dataset {
	d := Dataset{Timestamp: ts, Raw: append([]byte(nil), raw...)}
	if v, ok := mle.FindTLV(raw, mle.TLVType(datasetChannel)); ok && len(v) == 3 {
		d.Channel = mle.Channel{Page: v[0], Channel: binary.BigEndian.Uint16(v[1:])}
	}
	if v, ok := mle.FindTLV(raw, mle.TLVType(datasetPANID)); ok && len(v) == 2 {
		d.PANID = binary.BigEndian.Uint16(v)
	}
	return d
}

// EncodeDataset returns raw dataset TLVs carrying channel and PAN id.
func EncodeDataset(ch mle.Channel, panID uint16) []byte {
	v := binary.BigEndian.AppendUint16([]byte{ch.Page}, ch.Channel)
	raw := mle.AppendTLV(nil, mle.TLVType(datasetChannel), v)
	return mle.AppendTLV(raw, mle.TLVType(datasetPANID), binary.BigEndian.AppendUint16(nil, panID))
}

// Store holds network data and datasets. It is not safe for concurrent use.
type Store struct {
	leader    mle.LeaderData
	hasData   bool
	full      []byte
	stableOut bool

	active  *Dataset
	pending *Dataset

	changes int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Save commits network data delivered under leader. stableOnly marks data
// filtered to the stable subset for devices that do not want full network
// data. Data that is not newer than the committed copy of the same
// partition is refused with ErrStaleData.
func (s *Store) Save(leader mle.LeaderData, data []byte, stableOnly bool) error {
	if s.hasData && s.leader.SamePartition(leader) &&
		!serialnum.Greater8(leader.DataVersion, s.leader.DataVersion) &&
		!serialnum.Greater8(leader.StableDataVersion, s.leader.StableDataVersion) {
		return ErrStaleData
	}
	s.leader = leader
	s.full = append(s.full[:0], data...)
	s.stableOut = stableOnly
	s.hasData = true
	s.changes++
	return nil
}

// NetworkData returns the committed payload and the leader data it was
// delivered with.
func (s *Store) NetworkData() ([]byte, mle.LeaderData, bool) {
	return s.full, s.leader, s.hasData
}

// StableOnly reports whether the committed data is the stable subset.
func (s *Store) StableOnly() bool {
	return s.stableOut
}

// Purge drops the network data after a partition change.
func (s *Store) Purge() {
	s.full = nil
	s.hasData = false
	s.leader = mle.LeaderData{}
}

// ProcessActive offers an active dataset. It is accepted when nothing is
// held or ts is newer; it reports whether it was.
func (s *Store) ProcessActive(ts mle.Timestamp, raw []byte) bool {
	if s.active != nil && ts.Compare(s.active.Timestamp) <= 0 {
		return false
	}
	d := ParseDataset(ts, raw)
	s.active = &d
	s.changes++
	return true
}

// ProcessPending offers a pending dataset. A locally newer pending set is
// kept.
func (s *Store) ProcessPending(ts mle.Timestamp, raw []byte) bool {
	if s.pending != nil && ts.Compare(s.pending.Timestamp) <= 0 {
		return false
	}
	d := ParseDataset(ts, raw)
	s.pending = &d
	s.changes++
	return true
}

// Active returns the active dataset.
func (s *Store) Active() (Dataset, bool) {
	if s.active == nil {
		return Dataset{}, false
	}
	return *s.active, true
}

// Pending returns the pending dataset.
func (s *Store) Pending() (Dataset, bool) {
	if s.pending == nil {
		return Dataset{}, false
	}
	return *s.pending, true
}

// ActiveTimestamp returns the timestamp of the active dataset.
func (s *Store) ActiveTimestamp() (mle.Timestamp, bool) {
	if s.active == nil {
		return mle.Timestamp{}, false
	}
	return s.active.Timestamp, true
}

// PendingTimestamp returns the timestamp of the pending dataset.
func (s *Store) PendingTimestamp() (mle.Timestamp, bool) {
	if s.pending == nil {
		return mle.Timestamp{}, false
	}
	return s.pending.Timestamp, true
}

// NotifyChanged records a change notification for downstream consumers,
// for example after a leader finished resynchronizing.
func (s *Store) NotifyChanged() {
	s.changes++
}

// Changes returns the number of commits and notifications so far.
func (s *Store) Changes() int {
	return s.changes
}
