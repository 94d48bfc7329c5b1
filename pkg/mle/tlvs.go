package mle

import (
	"encoding/binary"
	"net/netip"
)

// LeaderData is the content of the Leader Data TLV.
type LeaderData struct {
	PartitionID       uint32
	Weighting         uint8
	DataVersion       uint8
	StableDataVersion uint8
	LeaderRouterID    uint8
}

// SamePartition reports whether both values describe the same partition
// (identical partition id and weighting).
func (l LeaderData) SamePartition(o LeaderData) bool {
	return l.PartitionID == o.PartitionID && l.Weighting == o.Weighting
}

// AppendLeaderData appends a Leader Data TLV.
func AppendLeaderData(dst []byte, l LeaderData) []byte {
	v := make([]byte, 8)
	binary.BigEndian.PutUint32(v, l.PartitionID)
	v[4] = l.Weighting
	v[5] = l.DataVersion
	v[6] = l.StableDataVersion
	v[7] = l.LeaderRouterID
	return AppendTLV(dst, TLVLeaderData, v)
}

// ReadLeaderData reads a Leader Data TLV.
func ReadLeaderData(payload []byte) (LeaderData, bool) {
	v, ok := FindTLV(payload, TLVLeaderData)
	if !ok || len(v) < 8 {
		return LeaderData{}, false
	}
	return LeaderData{
		PartitionID:       binary.BigEndian.Uint32(v),
		Weighting:         v[4],
		DataVersion:       v[5],
		StableDataVersion: v[6],
		LeaderRouterID:    v[7],
	}, true
}

// Connectivity is the content of the Connectivity TLV sent in a
// Parent-Response.
type Connectivity struct {
	// ParentPriority is -1 (low), 0 (medium) or +1 (high).
	ParentPriority int8
	LinkQuality3   uint8
	LinkQuality2   uint8
	LinkQuality1   uint8
	LeaderCost     uint8
	IDSequence     uint8
	ActiveRouters  uint8

	// Optional SED buffering fields; zero when absent.
	SEDBufferSize    uint16
	SEDDatagramCount uint8
}

func encodePriority(p int8) byte {
	switch {
	case p > 0:
		return 0x40
	case p < 0:
		return 0xc0
	default:
		return 0x00
	}
}

func decodePriority(b byte) int8 {
	switch b & 0xc0 {
	case 0x40:
		return 1
	case 0xc0:
		return -1
	default:
		// 0x80 is reserved and treated as medium.
		return 0
	}
}

// AppendConnectivity appends a Connectivity TLV. The SED fields are written
// only when SEDBufferSize is non-zero.
func AppendConnectivity(dst []byte, c Connectivity) []byte {
	v := []byte{
		encodePriority(c.ParentPriority),
		c.LinkQuality3,
		c.LinkQuality2,
		c.LinkQuality1,
		c.LeaderCost,
		c.IDSequence,
		c.ActiveRouters,
	}
	if c.SEDBufferSize != 0 {
		v = binary.BigEndian.AppendUint16(v, c.SEDBufferSize)
		v = append(v, c.SEDDatagramCount)
	}
	return AppendTLV(dst, TLVConnectivity, v)
}

// ReadConnectivity reads a Connectivity TLV.
func ReadConnectivity(payload []byte) (Connectivity, bool) {
	v, ok := FindTLV(payload, TLVConnectivity)
	if !ok || len(v) < 7 {
		return Connectivity{}, false
	}
	c := Connectivity{
		ParentPriority: decodePriority(v[0]),
		LinkQuality3:   v[1],
		LinkQuality2:   v[2],
		LinkQuality1:   v[3],
		LeaderCost:     v[4],
		IDSequence:     v[5],
		ActiveRouters:  v[6],
	}
	if len(v) >= 10 {
		c.SEDBufferSize = binary.BigEndian.Uint16(v[7:])
		c.SEDDatagramCount = v[9]
	}
	return c, true
}

// RouteEntry is the per-router byte of a Route64 TLV.
type RouteEntry struct {
	RouterID   uint8
	QualityOut uint8
	QualityIn  uint8
	RouteCost  uint8
}

// Route64 is the content of the Route64 TLV.
type Route64 struct {
	IDSequence uint8
	RouterMask [8]byte
	Entries    []RouteEntry
}

// HasRouter reports whether the router id bit is set in the mask.
func (r *Route64) HasRouter(id uint8) bool {
	if id > MaxRouterID {
		return false
	}
	return r.RouterMask[id/8]&(0x80>>(id%8)) != 0
}

// AppendRoute64 appends a Route64 TLV. The router mask is derived from the
// entries, which must be sorted by router id.
func AppendRoute64(dst []byte, r Route64) []byte {
	var mask [8]byte
	for _, e := range r.Entries {
		mask[e.RouterID/8] |= 0x80 >> (e.RouterID % 8)
	}
	v := append([]byte{r.IDSequence}, mask[:]...)
	for _, e := range r.Entries {
		v = append(v, (e.QualityOut&0x3)<<6|(e.QualityIn&0x3)<<4|e.RouteCost&0x0f)
	}
	return AppendTLV(dst, TLVRoute64, v)
}

// ReadRoute64 reads a Route64 TLV.
func ReadRoute64(payload []byte) (*Route64, bool) {
	v, ok := FindTLV(payload, TLVRoute64)
	if !ok || len(v) < 9 {
		return nil, false
	}
	r := &Route64{IDSequence: v[0]}
	copy(r.RouterMask[:], v[1:9])
	data := v[9:]
	for id := uint8(0); id <= MaxRouterID; id++ {
		if !r.HasRouter(id) {
			continue
		}
		if len(data) == 0 {
			return nil, false
		}
		b := data[0]
		data = data[1:]
		r.Entries = append(r.Entries, RouteEntry{
			RouterID:   id,
			QualityOut: b >> 6,
			QualityIn:  (b >> 4) & 0x3,
			RouteCost:  b & 0x0f,
		})
	}
	return r, true
}

// Mode is the device mode bit field.
type Mode uint8

// Mode bits.
const (
	ModeRxOnWhenIdle    Mode = 0x08
	ModeFullDevice      Mode = 0x02
	ModeFullNetworkData Mode = 0x01
)

// RxOnWhenIdle reports whether the receiver stays on when idle (not sleepy).
func (m Mode) RxOnWhenIdle() bool { return m&ModeRxOnWhenIdle != 0 }

// FullDevice reports whether the device is a full Thread device.
func (m Mode) FullDevice() bool { return m&ModeFullDevice != 0 }

// FullNetworkData reports whether the device wants full network data.
func (m Mode) FullNetworkData() bool { return m&ModeFullNetworkData != 0 }

// Timestamp is an operational dataset timestamp.
type Timestamp struct {
	Seconds       uint64 // 48 bits
	Ticks         uint16 // 15 bits
	Authoritative bool
}

// Compare orders timestamps by seconds, then ticks.
func (t Timestamp) Compare(o Timestamp) int {
	switch {
	case t.Seconds < o.Seconds:
		return -1
	case t.Seconds > o.Seconds:
		return 1
	case t.Ticks < o.Ticks:
		return -1
	case t.Ticks > o.Ticks:
		return 1
	default:
		return 0
	}
}

// AppendTimestamp appends a timestamp TLV of type t.
func AppendTimestamp(dst []byte, t TLVType, ts Timestamp) []byte {
	v := make([]byte, 8)
	secs := ts.Seconds & 0xffffffffffff
	v[0] = byte(secs >> 40)
	v[1] = byte(secs >> 32)
	binary.BigEndian.PutUint32(v[2:], uint32(secs))
	lo := (ts.Ticks & 0x7fff) << 1
	if ts.Authoritative {
		lo |= 1
	}
	binary.BigEndian.PutUint16(v[6:], lo)
	return AppendTLV(dst, t, v)
}

// ReadTimestamp reads a timestamp TLV of type t.
func ReadTimestamp(payload []byte, t TLVType) (Timestamp, bool) {
	v, ok := FindTLV(payload, t)
	if !ok || len(v) != 8 {
		return Timestamp{}, false
	}
	secs := uint64(v[0])<<40 | uint64(v[1])<<32 | uint64(binary.BigEndian.Uint32(v[2:]))
	lo := binary.BigEndian.Uint16(v[6:])
	return Timestamp{Seconds: secs, Ticks: lo >> 1, Authoritative: lo&1 != 0}, true
}

// Channel is the content of the Channel TLV.
type Channel struct {
	Page    uint8
	Channel uint16
}

// AppendChannel appends a Channel TLV.
func AppendChannel(dst []byte, c Channel) []byte {
	v := binary.BigEndian.AppendUint16([]byte{c.Page}, c.Channel)
	return AppendTLV(dst, TLVChannel, v)
}

// ReadChannel reads a Channel TLV.
func ReadChannel(payload []byte) (Channel, bool) {
	v, ok := FindTLV(payload, TLVChannel)
	if !ok || len(v) != 3 {
		return Channel{}, false
	}
	return Channel{Page: v[0], Channel: binary.BigEndian.Uint16(v[1:])}, true
}

// AddressEntry is one entry of the Address Registration TLV.
type AddressEntry struct {
	// Compressed entries carry a context id and interface identifier only.
	Compressed bool
	ContextID  uint8
	IID        [8]byte
	Address    netip.Addr
}

const addrCompressed = 0x80

// AppendAddressRegistration appends an Address Registration TLV with
// uncompressed entries.
func AppendAddressRegistration(dst []byte, addrs []netip.Addr) []byte {
	var v []byte
	for _, a := range addrs {
		b := a.As16()
		v = append(v, 0)
		v = append(v, b[:]...)
	}
	return AppendTLV(dst, TLVAddressRegistration, v)
}

// ReadAddressRegistration reads an Address Registration TLV.
func ReadAddressRegistration(payload []byte) ([]AddressEntry, bool) {
	v, ok := FindTLV(payload, TLVAddressRegistration)
	if !ok {
		return nil, false
	}
	var out []AddressEntry
	for len(v) > 0 {
		ctl := v[0]
		v = v[1:]
		if ctl&addrCompressed != 0 {
			if len(v) < 8 {
				return nil, false
			}
			e := AddressEntry{Compressed: true, ContextID: ctl & 0x0f}
			copy(e.IID[:], v[:8])
			out = append(out, e)
			v = v[8:]
			continue
		}
		if len(v) < 16 {
			return nil, false
		}
		var b [16]byte
		copy(b[:], v[:16])
		e := AddressEntry{Address: netip.AddrFrom16(b)}
		copy(e.IID[:], b[8:])
		out = append(out, e)
		v = v[16:]
	}
	return out, true
}
