package linkquality

// NoiseFloor is the receiver sensitivity assumed when computing link margin
// from a received signal strength.
const NoiseFloor int8 = -94

// MarginScaling is the fixed-point shift applied to scaled link margins.
const MarginScaling = 3

// MaxLinkCost is the cost of a bad or unusable link.
const MaxLinkCost uint8 = 16

// Quality is the discrete link quality class of a link margin.
type Quality uint8

const (
	// QualityBad marks a link that must not be used.
	QualityBad Quality = iota
	// Quality2dB is a link with more than 2 dB margin.
	Quality2dB
	// Quality10dB is a link with more than 10 dB margin.
	Quality10dB
	// Quality20dB is a link with more than 20 dB margin.
	Quality20dB
)

// String returns the quality class name.
func (q Quality) String() string {
	switch q {
	case QualityBad:
		return "BAD"
	case Quality2dB:
		return "2dB"
	case Quality10dB:
		return "10dB"
	case Quality20dB:
		return "20dB"
	default:
		return "UNKNOWN"
	}
}

// ComputeLinkMargin returns the margin in dB of a received signal above the
// noise floor. Signals at or below the floor have zero margin.
func ComputeLinkMargin(dbm int8) uint8 {
	if dbm <= NoiseFloor {
		return 0
	}
	return uint8(int16(dbm) - int16(NoiseFloor))
}

// Scale converts a raw margin to its scaled form.
func Scale(margin uint8) uint16 {
	return uint16(margin) << MarginScaling
}

// Unscale converts a scaled margin back to whole dB.
func Unscale(scaled uint16) uint8 {
	v := scaled >> MarginScaling
	if v > 0xff {
		return 0xff
	}
	return uint8(v)
}

// QualityFromScaled classifies a scaled link margin.
func QualityFromScaled(scaled uint16) Quality {
	switch {
	case scaled > 20<<MarginScaling:
		return Quality20dB
	case scaled > 10<<MarginScaling:
		return Quality10dB
	case scaled > 2<<MarginScaling:
		return Quality2dB
	default:
		return QualityBad
	}
}

// QualityFromMargin classifies a raw link margin.
func QualityFromMargin(margin uint8) Quality {
	return QualityFromScaled(Scale(margin))
}

// ParentMargin combines the margin measured locally on a parent's frame
// (toParent) with the margin the parent reported for our frame (fromParent).
// A link is only as good as its weaker direction, so the smaller value wins.
func ParentMargin(toParent, fromParent uint8) uint8 {
	if fromParent < toParent {
		return fromParent
	}
	return toParent
}

// Measure computes the combined margin and its quality for a parent
// candidate heard at dbm that reported reportedMargin for our request.
func Measure(dbm int8, reportedMargin uint8) (uint8, Quality) {
	m := ParentMargin(ComputeLinkMargin(dbm), reportedMargin)
	return m, QualityFromMargin(m)
}

// LinkCost returns the one-hop route cost for a quality class.
func LinkCost(q Quality) uint8 {
	switch q {
	case Quality20dB:
		return 1
	case Quality10dB:
		return 2
	case Quality2dB:
		return 4
	default:
		return MaxLinkCost
	}
}

// PathCost returns the cost to the leader through a parent: the cost of the
// link to the parent plus the parent's advertised cost to the leader,
// saturated at MaxLinkCost.
func PathCost(linkMargin uint8, parentCostToLeader uint8) uint8 {
	q := QualityFromMargin(linkMargin)
	if q == QualityBad {
		return MaxLinkCost
	}
	total := uint16(LinkCost(q)) + uint16(parentCostToLeader)
	if total > uint16(MaxLinkCost) {
		return MaxLinkCost
	}
	return uint8(total)
}
