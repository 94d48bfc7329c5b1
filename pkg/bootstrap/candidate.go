package bootstrap

import (
	"github.com/mash-protocol/mle-go/pkg/leaderdata"
	"github.com/mash-protocol/mle-go/pkg/linkquality"
	"github.com/mash-protocol/mle-go/pkg/mle"
)

// ScannedParent is the best parent candidate of the current scan.
type ScannedParent struct {
	Ext          mle.ExtAddress
	ShortAddress uint16
	Leader       mle.LeaderData
	Version      uint16

	// LinkMarginToParent is measured locally on the response,
	// LinkMarginFromParent is reported by the parent for our request.
	LinkMarginToParent   uint8
	LinkMarginFromParent uint8
	Margin               uint8
	Quality              linkquality.Quality

	RouteCostToLeader uint8
	LinkQuality3      uint8
	LinkQuality2      uint8
	LinkQuality1      uint8
	ParentPriority    int8
	ActiveRouters     uint8
	IDSequence        uint8

	// Challenge from the response, echoed in the Child-ID request.
	Challenge []byte

	LinkFrameCounter uint32
	MLEFrameCounter  uint32
	KeySequence      uint32
	KeyIndex         uint8

	// ChildIDRequestID is set only while a Child-ID request is pending.
	ChildIDRequestID mle.MessageID
}

// preferredOver reports whether c should replace cur. ownVersion enables
// the protocol version preference from Thread 1.2 on; it only breaks a tie
// left by the link quality levels.
func (c *ScannedParent) preferredOver(cur *ScannedParent, ownVersion uint16) bool {
	if !cur.Leader.SamePartition(c.Leader) {
		return leaderdata.ComparePartitions(leaderdata.Of(c.Leader, c.ActiveRouters), leaderdata.Of(cur.Leader, cur.ActiveRouters)) > 0
	}
	if c.Quality != cur.Quality {
		return c.Quality > cur.Quality
	}
	if cr, nr := mle.IsRouterAddress(cur.ShortAddress), mle.IsRouterAddress(c.ShortAddress); cr != nr {
		return nr
	}
	if c.ParentPriority != cur.ParentPriority {
		return c.ParentPriority > cur.ParentPriority
	}
	if c.LinkQuality3 != cur.LinkQuality3 {
		return c.LinkQuality3 > cur.LinkQuality3
	}
	if c.LinkQuality2 != cur.LinkQuality2 {
		return c.LinkQuality2 > cur.LinkQuality2
	}
	if c.LinkQuality1 != cur.LinkQuality1 {
		return c.LinkQuality1 > cur.LinkQuality1
	}
	if ownVersion >= mle.Version1_2 && c.Version != cur.Version {
		return c.Version > cur.Version
	}
	return false
}

// ParentInfo is the parent of an attached child.
type ParentInfo struct {
	Ext              mle.ExtAddress
	ShortAddress     uint16
	RouterID         uint8
	PathCostToLeader uint8
	Version          uint16

	// ChildUpdateProcessActive is set while a keep-alive is in flight;
	// ChildUpdatePending asks for another one once it completes.
	ChildUpdatePending       bool
	ChildUpdateProcessActive bool
}

// setCandidate is the only place a candidate is created or replaced.
func (ifc *iface) setCandidate(sp *ScannedParent) {
	ifc.scanned = sp
}

// takeCandidate hands the candidate over to the caller and clears it.
func (ifc *iface) takeCandidate() *ScannedParent {
	sp := ifc.scanned
	ifc.scanned = nil
	return sp
}
