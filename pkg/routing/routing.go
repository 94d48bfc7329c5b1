// Package routing is a small in-memory routing layer: the default route
// of an end device, a per-neighbor link margin cache and router routes
// learned from Route64 TLVs.
package routing

import (
	"github.com/mash-protocol/mle-go/pkg/linkquality"
	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/serialnum"
)

// DefaultRoute is the route through the parent.
type DefaultRoute struct {
	Next         mle.ExtAddress
	ShortAddress uint16
}

// Route is a route to a router.
type Route struct {
	RouterID uint8
	NextHop  uint8
	Cost     uint8
}

// Table holds routing state. It is not safe for concurrent use.
type Table struct {
	def        *DefaultRoute
	margins    map[mle.ExtAddress]uint8
	routes     map[uint8]Route
	idSequence uint8
	haveSeq    bool
	ownRouter  uint8
	isRouter   bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		margins: make(map[mle.ExtAddress]uint8),
		routes:  make(map[uint8]Route),
	}
}

// SetDefaultRoute routes all traffic through the parent.
func (t *Table) SetDefaultRoute(next mle.ExtAddress, short uint16) {
	t.def = &DefaultRoute{Next: next, ShortAddress: short}
}

// RemoveDefaultRoute drops the parent route.
func (t *Table) RemoveDefaultRoute() {
	t.def = nil
}

// DefaultRoute returns the parent route.
func (t *Table) DefaultRoute() (DefaultRoute, bool) {
	if t.def == nil {
		return DefaultRoute{}, false
	}
	return *t.def, true
}

// UpdateLinkMargin caches the last observed margin of a neighbor.
func (t *Table) UpdateLinkMargin(ext mle.ExtAddress, margin uint8) {
	t.margins[ext] = margin
}

// LinkMargin returns the cached margin of a neighbor.
func (t *Table) LinkMargin(ext mle.ExtAddress) (uint8, bool) {
	m, ok := t.margins[ext]
	return m, ok
}

// ForgetNeighbor drops the cached margin of a neighbor.
func (t *Table) ForgetNeighbor(ext mle.ExtAddress) {
	delete(t.margins, ext)
}

// SetRouterID marks the node as router id, or clears it with ok false.
func (t *Table) SetRouterID(id uint8, ok bool) {
	t.ownRouter, t.isRouter = id, ok
}

// ApplyRoute64 ingests the Route64 TLV of router sender heard with
// linkMargin. Routes through the sender replace known routes when
// cheaper or when the sender already was the next hop. An older id
// sequence is ignored.
func (t *Table) ApplyRoute64(sender uint16, r *mle.Route64, linkMargin uint8) {
	if !mle.IsRouterAddress(sender) || r == nil {
		return
	}
	if t.haveSeq && serialnum.Greater8(t.idSequence, r.IDSequence) {
		return
	}
	if !t.haveSeq || r.IDSequence != t.idSequence {
		t.idSequence, t.haveSeq = r.IDSequence, true
		for id := range t.routes {
			if !r.HasRouter(id) {
				delete(t.routes, id)
			}
		}
	}

	via := mle.RouterID(sender)
	link := linkquality.LinkCost(linkquality.QualityFromMargin(linkMargin))
	t.offer(Route{RouterID: via, NextHop: via, Cost: link})

	for _, e := range r.Entries {
		if e.RouterID == via || (t.isRouter && e.RouterID == t.ownRouter) {
			continue
		}
		if e.RouteCost == 0 {
			continue
		}
		cost := uint16(link) + uint16(e.RouteCost)
		if cost >= uint16(linkquality.MaxLinkCost) {
			continue
		}
		t.offer(Route{RouterID: e.RouterID, NextHop: via, Cost: uint8(cost)})
	}
}

func (t *Table) offer(r Route) {
	cur, ok := t.routes[r.RouterID]
	if !ok || r.Cost < cur.Cost || cur.NextHop == r.NextHop {
		t.routes[r.RouterID] = r
	}
}

// Route returns the route to a router id.
func (t *Table) Route(id uint8) (Route, bool) {
	r, ok := t.routes[id]
	return r, ok
}

// IDSequence returns the router id sequence of the last ingested Route64.
func (t *Table) IDSequence() (uint8, bool) {
	return t.idSequence, t.haveSeq
}

// HasRouteToLeader reports whether traffic can reach the leader: the node
// is the leader, has a route to it, or has a parent.
func (t *Table) HasRouteToLeader(leaderRouterID uint8) bool {
	if t.isRouter && t.ownRouter == leaderRouterID {
		return true
	}
	if _, ok := t.routes[leaderRouterID]; ok {
		return true
	}
	return t.def != nil
}

// Purge drops partition specific routing data: router routes and the id
// sequence. The default route and link margins survive.
func (t *Table) Purge() {
	t.routes = make(map[uint8]Route)
	t.haveSeq = false
	t.idSequence = 0
}

// Reset drops everything.
func (t *Table) Reset() {
	t.Purge()
	t.def = nil
	t.margins = make(map[mle.ExtAddress]uint8)
	t.isRouter = false
}
