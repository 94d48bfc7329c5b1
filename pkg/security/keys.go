// Package security manages Thread key material: MLE and MAC keys derived
// from the network key and the current key sequence.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/serialnum"
)

// KeySize is the size of the network key and of derived keys.
const KeySize = 16

// ErrInvalidNetworkKey is returned for a malformed network key.
var ErrInvalidNetworkKey = errors.New("invalid network key")

// NetworkKey is the Thread network (master) key.
type NetworkKey [KeySize]byte

// ParseNetworkKey parses 32 hex digits.
func ParseNetworkKey(s string) (NetworkKey, error) {
	var k NetworkKey
	raw, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("%w: %v", ErrInvalidNetworkKey, err)
	}
	if len(raw) != KeySize {
		return k, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidNetworkKey, KeySize, len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

// Keys is the key set for one key sequence.
type Keys struct {
	Sequence uint32
	MLE      [KeySize]byte
	MAC      [KeySize]byte
}

// Index returns the key index carried in auxiliary security headers.
func (k Keys) Index() uint8 {
	return KeyIndex(k.Sequence)
}

// KeyIndex maps a key sequence to its key index.
func KeyIndex(seq uint32) uint8 {
	return uint8(seq&0x7f) + 1
}

var derivationLabel = []byte("Thread")

// Derive computes HMAC-SHA256(key, sequence || "Thread"). The first half
// is the MLE key, the second half the MAC key.
func Derive(key NetworkKey, seq uint32) Keys {
	mac := hmac.New(sha256.New, key[:])
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], seq)
	mac.Write(b[:])
	mac.Write(derivationLabel)
	sum := mac.Sum(nil)

	k := Keys{Sequence: seq}
	copy(k.MLE[:], sum[:KeySize])
	copy(k.MAC[:], sum[KeySize:])
	return k
}

// Manager tracks the active key sequence.
type Manager struct {
	key     NetworkKey
	current Keys
}

// NewManager creates a manager starting at seq.
func NewManager(key NetworkKey, seq uint32) *Manager {
	return &Manager{key: key, current: Derive(key, seq)}
}

// Current returns the active keys.
func (m *Manager) Current() Keys {
	return m.current
}

// Sequence returns the active key sequence.
func (m *Manager) Sequence() uint32 {
	return m.current.Sequence
}

// KeysFor derives the keys of an arbitrary sequence, for instance to
// authenticate a frame secured with the previous or next key.
func (m *Manager) KeysFor(seq uint32) Keys {
	if seq == m.current.Sequence {
		return m.current
	}
	return Derive(m.key, seq)
}

// Synchronize switches to seq if it is newer than the active sequence and
// reports whether it did.
func (m *Manager) Synchronize(seq uint32) bool {
	if !serialnum.Greater32(seq, m.current.Sequence) {
		return false
	}
	m.current = Derive(m.key, seq)
	return true
}

// MLEParams returns the security parameters for outbound MLE messages:
// a 4-byte key source carrying the sequence and the matching key index.
func (m *Manager) MLEParams() mle.SecurityParams {
	return mle.SecurityParams{
		KeyIDMode:   mle.KeyIDModeSource4Index,
		KeyIndex:    m.current.Index(),
		KeySequence: m.current.Sequence,
	}
}
