package mle

import "net/netip"

// KeyIDMode is the 802.15.4 auxiliary security header key identifier mode.
type KeyIDMode uint8

// Key identifier modes.
const (
	KeyIDModeImplicit KeyIDMode = 0
	KeyIDModeIndex    KeyIDMode = 1
	// KeyIDModeSource4Index carries a 4-byte key source (the key sequence)
	// and a key index.
	KeyIDModeSource4Index KeyIDMode = 2
	KeyIDModeSource8Index KeyIDMode = 3
)

// SecurityHeader describes how a received message was secured.
type SecurityHeader struct {
	KeyIDMode    KeyIDMode
	KeyIndex     uint8
	KeySequence  uint32
	FrameCounter uint32
}

// SecurityParams selects the key used to secure an outbound message.
type SecurityParams struct {
	KeyIDMode   KeyIDMode
	KeyIndex    uint8
	KeySequence uint32
}

// Message is a received, already authenticated MLE message.
type Message struct {
	Interface InterfaceID
	Command   Command
	Source    netip.Addr
	Payload   []byte

	// DBM is the received signal strength of the carrying frame.
	DBM int8

	Security SecurityHeader
}

// SourceExt returns the sender's extended address derived from its
// link-local source.
func (m *Message) SourceExt() (ExtAddress, bool) {
	return ExtFromLinkLocal(m.Source)
}

// Find returns the value of TLV t.
func (m *Message) Find(t TLVType) ([]byte, bool) {
	return FindTLV(m.Payload, t)
}

// Has reports whether TLV t is present.
func (m *Message) Has(t TLVType) bool {
	return HasTLV(m.Payload, t)
}
