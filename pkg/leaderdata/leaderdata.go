// Package leaderdata reconciles heard Leader Data against the locally
// remembered partition and decides between refreshing network data,
// merging into another partition or ignoring the sender.
//
// Data versions are compared with serial-number arithmetic; within one
// partition the local versions never move backwards. A partition change
// sets them to one less than the heard values so that the next network
// data delivery is recognized as newer.
package leaderdata

import (
	"errors"

	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/serialnum"
)

// Validation errors.
var (
	ErrInvalidLeaderRouterID = errors.New("leader router id out of range")
	ErrLeaderNotInRoute      = errors.New("leader router missing from route mask")
)

// Decision is the outcome of MergeOrRequest.
type Decision uint8

const (
	// DecisionNone means the local copy is current.
	DecisionNone Decision = iota

	// DecisionUpdate means newer network data should be requested from
	// the sender.
	DecisionUpdate

	// DecisionMerge means the sender's partition is preferred and the node
	// must raise a partition merge.
	DecisionMerge

	// DecisionReject means the heard data failed validation or belongs to
	// a lower partition.
	DecisionReject
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "NONE"
	case DecisionUpdate:
		return "UPDATE"
	case DecisionMerge:
		return "MERGE"
	case DecisionReject:
		return "REJECT"
	default:
		return "UNKNOWN"
	}
}

// Reconcile folds heard leader data into local and reports whether a
// network data refresh is needed. local must not be nil.
func Reconcile(local *mle.LeaderData, heard mle.LeaderData) bool {
	if local.PartitionID != heard.PartitionID {
		local.PartitionID = heard.PartitionID
		local.Weighting = heard.Weighting
		local.LeaderRouterID = heard.LeaderRouterID
		local.DataVersion = heard.DataVersion - 1
		local.StableDataVersion = heard.StableDataVersion - 1
		return true
	}

	local.Weighting = heard.Weighting
	local.LeaderRouterID = heard.LeaderRouterID
	return NeedsRefresh(local, heard)
}

// NeedsRefresh reports whether heard carries a newer data or stable data
// version than local.
func NeedsRefresh(local *mle.LeaderData, heard mle.LeaderData) bool {
	return serialnum.Greater8(heard.DataVersion, local.DataVersion) ||
		serialnum.Greater8(heard.StableDataVersion, local.StableDataVersion)
}

// Advance moves the local versions forward to heard after network data was
// committed. Versions that are not newer are left alone.
func Advance(local *mle.LeaderData, heard mle.LeaderData) {
	if serialnum.Greater8(heard.DataVersion, local.DataVersion) {
		local.DataVersion = heard.DataVersion
	}
	if serialnum.Greater8(heard.StableDataVersion, local.StableDataVersion) {
		local.StableDataVersion = heard.StableDataVersion
	}
}

// Validate checks heard leader data, and the leader's presence in route
// when one was advertised.
func Validate(heard mle.LeaderData, route *mle.Route64) error {
	if heard.LeaderRouterID > mle.MaxRouterID {
		return ErrInvalidLeaderRouterID
	}
	if route != nil && !route.HasRouter(heard.LeaderRouterID) {
		return ErrLeaderNotInRoute
	}
	return nil
}

// Partition describes a partition for comparison.
type Partition struct {
	ID            uint32
	Weighting     uint8
	ActiveRouters uint8
}

// Of builds a Partition from leader data and an active router count.
func Of(l mle.LeaderData, activeRouters uint8) Partition {
	return Partition{ID: l.PartitionID, Weighting: l.Weighting, ActiveRouters: activeRouters}
}

func (p Partition) singleton() bool {
	return p.ActiveRouters <= 1
}

// ComparePartitions orders partitions by weighting, then prefers a
// partition with more than one router, then the higher partition id. It
// returns 1 if a is preferred, -1 if b is, 0 if they are the same.
func ComparePartitions(a, b Partition) int {
	switch {
	case a.Weighting > b.Weighting:
		return 1
	case a.Weighting < b.Weighting:
		return -1
	}
	if a.singleton() != b.singleton() {
		if a.singleton() {
			return -1
		}
		return 1
	}
	switch {
	case a.ID > b.ID:
		return 1
	case a.ID < b.ID:
		return -1
	default:
		return 0
	}
}

// MergeOrRequest decides what a node in partition own should do after
// hearing heard from a neighbor. route is the optional Route64 of the
// sender. A nil own means nothing is known yet and any valid data is
// requested.
func MergeOrRequest(own *mle.LeaderData, ownActiveRouters uint8, heard mle.LeaderData, heardActiveRouters uint8, route *mle.Route64) Decision {
	if Validate(heard, route) != nil {
		return DecisionReject
	}
	if own == nil {
		return DecisionUpdate
	}
	if !own.SamePartition(heard) {
		if ComparePartitions(Of(heard, heardActiveRouters), Of(*own, ownActiveRouters)) > 0 {
			return DecisionMerge
		}
		return DecisionReject
	}
	if NeedsRefresh(own, heard) {
		return DecisionUpdate
	}
	return DecisionNone
}

// ConsiderMerge decides whether a REED should move to the partition heard
// from a sender with short address sender. Advertisements from routers are
// handled by the router path and never trigger this. Version aware nodes
// merge into a strictly higher weighting, or an equal weighting with a
// higher partition id; legacy nodes compare partition ids only.
func ConsiderMerge(own mle.LeaderData, sender uint16, heard mle.LeaderData, versionAware bool) bool {
	if mle.IsRouterAddress(sender) {
		return false
	}
	if !versionAware {
		return heard.PartitionID > own.PartitionID
	}
	if heard.Weighting != own.Weighting {
		return heard.Weighting > own.Weighting
	}
	return heard.PartitionID > own.PartitionID
}
