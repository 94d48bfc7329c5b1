package mle

import (
	"encoding/binary"
	"fmt"
)

// TLVType identifies an MLE TLV.
type TLVType uint8

// MLE TLV types.
const (
	TLVSourceAddress             TLVType = 0
	TLVMode                      TLVType = 1
	TLVTimeout                   TLVType = 2
	TLVChallenge                 TLVType = 3
	TLVResponse                  TLVType = 4
	TLVLinkFrameCounter          TLVType = 5
	TLVLinkQuality               TLVType = 6
	TLVNetworkParameter          TLVType = 7
	TLVMLEFrameCounter           TLVType = 8
	TLVRoute64                   TLVType = 9
	TLVAddress16                 TLVType = 10
	TLVLeaderData                TLVType = 11
	TLVNetworkData               TLVType = 12
	TLVRequest                   TLVType = 13
	TLVScanMask                  TLVType = 14
	TLVConnectivity              TLVType = 15
	TLVLinkMargin                TLVType = 16
	TLVStatus                    TLVType = 17
	TLVVersion                   TLVType = 18
	TLVAddressRegistration       TLVType = 19
	TLVChannel                   TLVType = 20
	TLVPANID                     TLVType = 21
	TLVActiveTimestamp           TLVType = 22
	TLVPendingTimestamp          TLVType = 23
	TLVActiveOperationalDataset  TLVType = 24
	TLVPendingOperationalDataset TLVType = 25
)

// String returns the TLV name.
func (t TLVType) String() string {
	switch t {
	case TLVSourceAddress:
		return "SourceAddress"
	case TLVMode:
		return "Mode"
	case TLVTimeout:
		return "Timeout"
	case TLVChallenge:
		return "Challenge"
	case TLVResponse:
		return "Response"
	case TLVLinkFrameCounter:
		return "LinkLayerFrameCounter"
	case TLVLinkQuality:
		return "LinkQuality"
	case TLVNetworkParameter:
		return "NetworkParameter"
	case TLVMLEFrameCounter:
		return "MLEFrameCounter"
	case TLVRoute64:
		return "Route64"
	case TLVAddress16:
		return "Address16"
	case TLVLeaderData:
		return "LeaderData"
	case TLVNetworkData:
		return "NetworkData"
	case TLVRequest:
		return "TLVRequest"
	case TLVScanMask:
		return "ScanMask"
	case TLVConnectivity:
		return "Connectivity"
	case TLVLinkMargin:
		return "LinkMargin"
	case TLVStatus:
		return "Status"
	case TLVVersion:
		return "Version"
	case TLVAddressRegistration:
		return "AddressRegistration"
	case TLVChannel:
		return "Channel"
	case TLVPANID:
		return "PANID"
	case TLVActiveTimestamp:
		return "ActiveTimestamp"
	case TLVPendingTimestamp:
		return "PendingTimestamp"
	case TLVActiveOperationalDataset:
		return "ActiveOperationalDataset"
	case TLVPendingOperationalDataset:
		return "PendingOperationalDataset"
	default:
		return fmt.Sprintf("TLV(%d)", uint8(t))
	}
}

// MaxTLVLength is the largest value a single-byte length field can carry.
const MaxTLVLength = 254

// AppendTLV appends a TLV header and value to dst and returns the extended
// buffer. It panics if value exceeds MaxTLVLength; callers size their
// values.
func AppendTLV(dst []byte, t TLVType, value []byte) []byte {
	if len(value) > MaxTLVLength {
		panic(fmt.Sprintf("mle: %s value too long (%d bytes)", t, len(value)))
	}
	dst = append(dst, byte(t), byte(len(value)))
	return append(dst, value...)
}

// AppendUint8 appends a one-byte TLV.
func AppendUint8(dst []byte, t TLVType, v uint8) []byte {
	return append(dst, byte(t), 1, v)
}

// AppendUint16 appends a two-byte big-endian TLV.
func AppendUint16(dst []byte, t TLVType, v uint16) []byte {
	dst = append(dst, byte(t), 2)
	return binary.BigEndian.AppendUint16(dst, v)
}

// AppendUint32 appends a four-byte big-endian TLV.
func AppendUint32(dst []byte, t TLVType, v uint32) []byte {
	dst = append(dst, byte(t), 4)
	return binary.BigEndian.AppendUint32(dst, v)
}

// AppendRequest appends a TLV Request listing the given types.
func AppendRequest(dst []byte, types ...TLVType) []byte {
	v := make([]byte, len(types))
	for i, t := range types {
		v[i] = byte(t)
	}
	return AppendTLV(dst, TLVRequest, v)
}

// FindTLV returns the value of the first TLV of type t. A truncated TLV ends
// the search.
func FindTLV(payload []byte, t TLVType) ([]byte, bool) {
	for len(payload) >= 2 {
		typ, n := TLVType(payload[0]), int(payload[1])
		if len(payload) < 2+n {
			return nil, false
		}
		if typ == t {
			return payload[2 : 2+n], true
		}
		payload = payload[2+n:]
	}
	return nil, false
}

// HasTLV reports whether a TLV of type t is present.
func HasTLV(payload []byte, t TLVType) bool {
	_, ok := FindTLV(payload, t)
	return ok
}

// ReadUint8 reads a one-byte TLV.
func ReadUint8(payload []byte, t TLVType) (uint8, bool) {
	v, ok := FindTLV(payload, t)
	if !ok || len(v) != 1 {
		return 0, false
	}
	return v[0], true
}

// ReadUint16 reads a two-byte big-endian TLV.
func ReadUint16(payload []byte, t TLVType) (uint16, bool) {
	v, ok := FindTLV(payload, t)
	if !ok || len(v) != 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(v), true
}

// ReadUint32 reads a four-byte big-endian TLV.
func ReadUint32(payload []byte, t TLVType) (uint32, bool) {
	v, ok := FindTLV(payload, t)
	if !ok || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

// ReadRequest reads the TLV types listed in a TLV Request.
func ReadRequest(payload []byte) ([]TLVType, bool) {
	v, ok := FindTLV(payload, TLVRequest)
	if !ok {
		return nil, false
	}
	types := make([]TLVType, len(v))
	for i, b := range v {
		types[i] = TLVType(b)
	}
	return types, true
}

// SetUint8 overwrites the value of an existing one-byte TLV in place.
// It reports false if the TLV is missing.
func SetUint8(payload []byte, t TLVType, v uint8) bool {
	for i := 0; i+2 <= len(payload); {
		typ, n := TLVType(payload[i]), int(payload[i+1])
		if i+2+n > len(payload) {
			return false
		}
		if typ == t {
			if n != 1 {
				return false
			}
			payload[i+2] = v
			return true
		}
		i += 2 + n
	}
	return false
}

// Types lists the TLV types present in payload, in order.
func Types(payload []byte) []TLVType {
	var out []TLVType
	for len(payload) >= 2 {
		n := int(payload[1])
		if len(payload) < 2+n {
			break
		}
		out = append(out, TLVType(payload[0]))
		payload = payload[2+n:]
	}
	return out
}
