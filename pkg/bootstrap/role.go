package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/mash-protocol/mle-go/pkg/mle"
)

// PromoteToRouter switches an attached router-capable interface to the
// router role with the given router id. The parent link is dropped.
func (e *Engine) PromoteToRouter(id mle.InterfaceID, routerID uint8) error {
	ifc, err := e.lookup(id)
	if err != nil {
		return err
	}
	if !ifc.cfg.RouterCapable {
		return ErrNotRouterCapable
	}
	if routerID > mle.MaxRouterID {
		return fmt.Errorf("%w: %d", ErrInvalidRouterID, routerID)
	}
	if !ifc.state.attached() {
		return ErrNoParent
	}

	ifc.free(&ifc.childUpdateID)
	ifc.setFastPoll(false)
	ifc.parent = nil
	ifc.deps.Routing.RemoveDefaultRoute()

	ifc.router = true
	ifc.releasingRouterID = false
	ifc.shortAddress = mle.RouterShortAddress(routerID)
	ifc.deps.Routing.SetRouterID(routerID, true)
	ifc.logAt(slog.LevelInfo, "router role", "router_id", routerID, "short", ifc.shortAddress)
	e.setState(ifc, StateConnectedRouter, "promoted to router")
	return nil
}

// ReleaseRouterID gives up the router id and reattaches to the same
// partition as a child. Any router id sequence is accepted while
// releasing.
func (e *Engine) ReleaseRouterID(id mle.InterfaceID) error {
	ifc, err := e.lookup(id)
	if err != nil {
		return err
	}
	if !ifc.router {
		return ErrInvalidRouterID
	}
	ifc.router = false
	ifc.releasingRouterID = true
	ifc.shortAddress = mle.InvalidShortAddress
	ifc.deps.Routing.SetRouterID(0, false)
	e.setState(ifc, StateConnected, "router id released")
	return e.StartAttach(id, AttachReattach)
}

// ResetInterface abandons the attachment: queued messages, the candidate
// and the parent are dropped and the interface waits for a new attach.
// Leader data is kept.
func (e *Engine) ResetInterface(id mle.InterfaceID) error {
	ifc, err := e.lookup(id)
	if err != nil {
		return err
	}
	e.clearQueue(ifc)
	ifc.setFastPoll(false)
	if ifc.parent != nil {
		ifc.deps.Neighbors.Remove(ifc.parent.Ext)
		ifc.parent = nil
	}
	ifc.deps.Routing.RemoveDefaultRoute()
	if ifc.router {
		ifc.router = false
		ifc.deps.Routing.SetRouterID(0, false)
	}
	ifc.shortAddress = mle.InvalidShortAddress
	ifc.recv = receiveGeneral
	ifc.releasingRouterID = false
	e.setState(ifc, StateNetworkDiscover, "reset")
	return nil
}

// RebuildNeighborTable recreates neighbor entries for the stored children
// of a router after a restart.
func (e *Engine) RebuildNeighborTable(id mle.InterfaceID) (int, error) {
	ifc, err := e.lookup(id)
	if err != nil {
		return 0, err
	}
	if ifc.deps.Children == nil {
		return 0, nil
	}
	n, err := ifc.deps.Children.RebuildMLETable(ifc.deps.Neighbors, ifc.deps.Devices)
	ifc.debugLog("neighbor table rebuilt", "children", n)
	return n, err
}
