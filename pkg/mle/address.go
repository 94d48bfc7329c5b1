package mle

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"
)

// InterfaceID identifies a radio interface. Each interface carries
// independent attach state.
type InterfaceID uint8

// ExtAddress is an IEEE 802.15.4 extended (EUI-64 derived) address.
type ExtAddress [8]byte

// String formats the address as colon-separated hex.
func (e ExtAddress) String() string {
	var b strings.Builder
	for i, x := range e {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02x", x)
	}
	return b.String()
}

// IsZero reports whether the address is all zeroes.
func (e ExtAddress) IsZero() bool {
	return e == ExtAddress{}
}

// ParseExtAddress parses 16 hex digits, optionally separated by colons.
func ParseExtAddress(s string) (ExtAddress, error) {
	var e ExtAddress
	raw, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
	if err != nil {
		return e, fmt.Errorf("invalid extended address %q: %w", s, err)
	}
	if len(raw) != len(e) {
		return e, fmt.Errorf("invalid extended address %q: want 8 bytes, got %d", s, len(raw))
	}
	copy(e[:], raw)
	return e, nil
}

// Well-known multicast destinations.
var (
	AllNodesMulticast   = netip.MustParseAddr("ff02::1")
	AllRoutersMulticast = netip.MustParseAddr("ff02::2")
)

// LinkLocalFromExt derives the fe80::/64 address of a neighbor from its
// extended address (universal/local bit inverted).
func LinkLocalFromExt(e ExtAddress) netip.Addr {
	var b [16]byte
	b[0], b[1] = 0xfe, 0x80
	copy(b[8:], e[:])
	b[8] ^= 0x02
	return netip.AddrFrom16(b)
}

// ExtFromLinkLocal recovers the extended address from a link-local source.
func ExtFromLinkLocal(a netip.Addr) (ExtAddress, bool) {
	var e ExtAddress
	if !a.Is6() || !a.IsLinkLocalUnicast() {
		return e, false
	}
	b := a.As16()
	copy(e[:], b[8:])
	e[0] ^= 0x02
	return e, true
}

// Short address layout.
const (
	InvalidShortAddress uint16 = 0xfffe
	ChildIDMask         uint16 = 0x01ff
	MaxRouterID         uint8  = 62
)

// IsRouterAddress reports whether short is a router locator (child id 0).
func IsRouterAddress(short uint16) bool {
	return short < 0xfc00 && short&ChildIDMask == 0
}

// RouterID extracts the router id of a short address.
func RouterID(short uint16) uint8 {
	return uint8(short >> 10)
}

// RouterShortAddress returns the router locator for id.
func RouterShortAddress(id uint8) uint16 {
	return uint16(id) << 10
}

// MarshalText implements encoding.TextMarshaler.
func (e ExtAddress) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *ExtAddress) UnmarshalText(text []byte) error {
	v, err := ParseExtAddress(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}
