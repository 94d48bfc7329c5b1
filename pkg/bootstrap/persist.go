package bootstrap

import (
	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/persistence"
)

// Snapshot captures the state an interface needs to resume after a reset.
func (e *Engine) Snapshot(id mle.InterfaceID) (persistence.InterfaceState, error) {
	ifc, err := e.lookup(id)
	if err != nil {
		return persistence.InterfaceState{}, err
	}
	st := persistence.InterfaceState{
		Interface:        id,
		ShortAddress:     ifc.shortAddress,
		RouterIDSequence: ifc.routerIDSequence,
		KeySequence:      ifc.deps.Keys.Sequence(),
	}
	if ifc.leader != nil {
		l := *ifc.leader
		st.Leader = &l
	}
	if par := ifc.parent; par != nil {
		ps := &persistence.ParentState{
			Ext:          par.Ext,
			ShortAddress: par.ShortAddress,
			PathCost:     par.PathCostToLeader,
			Version:      par.Version,
		}
		if entry, ok := ifc.deps.Neighbors.Lookup(par.Ext); ok {
			ps.LinkFrameCounter = entry.LinkFrameCounter
			ps.MLEFrameCounter = entry.MLEFrameCounter
		}
		st.Parent = ps
	}
	if ifc.deps.Children != nil {
		st.Children = ifc.deps.Children.Records()
	}
	return st, nil
}

// Restore loads saved state into an idle interface. A restored parent can
// then be resumed with StartSynch. A restored router resumes its role at
// once and rebuilds its children with RebuildNeighborTable.
func (e *Engine) Restore(id mle.InterfaceID, st persistence.InterfaceState) error {
	ifc, err := e.lookup(id)
	if err != nil {
		return err
	}
	ifc.deps.Keys.Synchronize(st.KeySequence)
	ifc.shortAddress = st.ShortAddress
	ifc.routerIDSequence = st.RouterIDSequence
	if st.Leader != nil {
		ifc.setLeader(*st.Leader, "restored")
	}

	if ps := st.Parent; ps != nil {
		ifc.parent = &ParentInfo{
			Ext:              ps.Ext,
			ShortAddress:     ps.ShortAddress,
			RouterID:         mle.RouterID(ps.ShortAddress),
			PathCostToLeader: ps.PathCost,
			Version:          ps.Version,
		}
		entry, err := ifc.deps.Neighbors.LookupOrCreate(ps.Ext)
		if err != nil {
			return err
		}
		entry.ShortAddress = ps.ShortAddress
		entry.Version = ps.Version
		entry.LinkFrameCounter = ps.LinkFrameCounter
		entry.MLEFrameCounter = ps.MLEFrameCounter
		entry.ThreadNeighbor = true
		entry.Timeout = ifc.cfg.ChildTimeout
	}

	if ifc.cfg.RouterCapable && st.Parent == nil && mle.IsRouterAddress(st.ShortAddress) {
		rid := mle.RouterID(st.ShortAddress)
		ifc.router = true
		ifc.deps.Routing.SetRouterID(rid, true)
		if ifc.leader != nil && ifc.leader.LeaderRouterID == rid {
			ifc.leaderRestartResync = true
		}
		e.setState(ifc, StateConnectedRouter, "restored router")
	}

	if ifc.deps.Children != nil {
		ifc.deps.Children.Reset()
		for _, r := range st.Children {
			if !ifc.deps.Children.Store(r) {
				ifc.debugLog("child record dropped", "ext", r.LongAddr)
			}
		}
	}
	ifc.debugLog("state restored", "short", st.ShortAddress, "parent", st.Parent != nil)
	return nil
}
