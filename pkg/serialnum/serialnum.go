// Package serialnum implements serial-number arithmetic (RFC 1982 style) for
// the wrapping counters used by MLE: router id sequence, network data
// versions and key sequence.
//
// A value a is newer than b when the difference a-b, interpreted as a signed
// integer of the same width, is positive. Plain < and > give wrong answers
// as soon as a counter wraps.
package serialnum

// Greater8 reports whether a is newer than b.
func Greater8(a, b uint8) bool {
	return int8(a-b) > 0
}

// Compare8 returns -1, 0 or +1 depending on whether a is older than, equal
// to, or newer than b.
func Compare8(a, b uint8) int {
	d := int8(a - b)
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	default:
		return 0
	}
}

// Greater32 reports whether a is newer than b.
func Greater32(a, b uint32) bool {
	return int32(a-b) > 0
}

// Compare32 is the 32-bit variant of Compare8.
func Compare32(a, b uint32) int {
	d := int32(a - b)
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	default:
		return 0
	}
}
