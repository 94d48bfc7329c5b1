package bootstrap

import (
	"log/slog"

	"github.com/mash-protocol/mle-go/pkg/linkquality"
	"github.com/mash-protocol/mle-go/pkg/log"
	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/neighbor"
)

// SendChildIDRequest sends the Child-ID request to the held candidate.
func (e *Engine) SendChildIDRequest(id mle.InterfaceID) error {
	ifc, err := e.lookup(id)
	if err != nil {
		return err
	}
	return e.sendChildIDRequest(ifc)
}

func (e *Engine) sendChildIDRequest(ifc *iface) error {
	sp := ifc.scanned
	if sp == nil {
		return ErrNoCandidate
	}
	if sp.ChildIDRequestID != 0 {
		ifc.deps.Messages.Free(sp.ChildIDRequestID)
		sp.ChildIDRequestID = 0
	}

	p := mle.AppendTLV(nil, mle.TLVResponse, sp.Challenge)
	p = mle.AppendUint32(p, mle.TLVLinkFrameCounter, ifc.frameCounter)
	p = mle.AppendUint32(p, mle.TLVMLEFrameCounter, ifc.frameCounter)
	p = mle.AppendUint8(p, mle.TLVMode, uint8(ifc.cfg.Mode))
	p = mle.AppendUint32(p, mle.TLVTimeout, ifc.cfg.childTimeoutSeconds())
	p = mle.AppendUint16(p, mle.TLVVersion, ifc.cfg.ThreadVersion)
	p = mle.AppendRequest(p, ifc.requestedTLVs()...)
	if ts, ok := ifc.deps.NetworkData.ActiveTimestamp(); ok {
		p = mle.AppendTimestamp(p, mle.TLVActiveTimestamp, ts)
	}
	if ts, ok := ifc.deps.NetworkData.PendingTimestamp(); ok {
		p = mle.AppendTimestamp(p, mle.TLVPendingTimestamp, ts)
	}
	if !ifc.cfg.Mode.FullDevice() {
		p = mle.AppendAddressRegistration(p, ifc.cfg.Addresses)
	}

	msg, err := e.send(ifc, mle.CmdChildIDRequest, mle.LinkLocalFromExt(sp.Ext), p, mle.TimeoutChildIDRequest, ifc.cfg.Timeouts.ChildID)
	if err != nil {
		return err
	}
	sp.ChildIDRequestID = msg.ID
	ifc.recv = receiveChildID
	e.setState(ifc, StateChildIDRequest, "child id request sent")
	return nil
}

// requestedTLVs lists the TLVs asked from a parent.
func (ifc *iface) requestedTLVs() []mle.TLVType {
	req := []mle.TLVType{mle.TLVAddress16, mle.TLVNetworkData}
	if ifc.router {
		req = append(req, mle.TLVRoute64)
	}
	return req
}

// handleChildIDResponse completes an attach with the selected candidate.
func (e *Engine) handleChildIDResponse(ifc *iface, msg *mle.Message) {
	sp := ifc.scanned
	if sp == nil || sp.ChildIDRequestID == 0 {
		ifc.drop(msg, "no pending child id request")
		return
	}
	ext, ok := msg.SourceExt()
	if !ok || ext != sp.Ext {
		ifc.drop(msg, "not the selected candidate")
		return
	}

	p := msg.Payload
	short, ok1 := mle.ReadUint16(p, mle.TLVSourceAddress)
	addr16, ok2 := mle.ReadUint16(p, mle.TLVAddress16)
	leader, ok3 := mle.ReadLeaderData(p)
	if !ok1 || !ok2 || !ok3 {
		ifc.drop(msg, "missing mandatory TLV")
		return
	}

	// mergePrepare drops the router role; Route64 was requested with it.
	wasRouter := ifc.router
	e.mergePrepare(ifc, sp)

	entry, err := ifc.deps.Neighbors.LookupOrCreate(ext)
	if err != nil {
		ifc.logAt(slog.LevelWarn, "no neighbor slot for parent", "ext", ext, "error", err)
		sp = ifc.takeCandidate()
		ifc.deps.Messages.Free(sp.ChildIDRequestID)
		ifc.recv = receiveGeneral
		e.connectionError(ifc, ErrorNetworkAttachFail, &ext)
		return
	}

	llfc, ok := mle.ReadUint32(p, mle.TLVLinkFrameCounter)
	if !ok {
		llfc = sp.LinkFrameCounter
	}
	mlefc, ok := mle.ReadUint32(p, mle.TLVMLEFrameCounter)
	if !ok {
		mlefc = llfc
	}
	if msg.Security.KeyIDMode == mle.KeyIDModeSource4Index {
		ifc.deps.Keys.Synchronize(msg.Security.KeySequence)
	}

	entry.ShortAddress = short
	entry.Version = sp.Version
	entry.LinkFrameCounter = llfc
	entry.MLEFrameCounter = mlefc
	entry.KeySequence = msg.Security.KeySequence
	entry.KeyIndex = msg.Security.KeyIndex
	entry.LinkMargin = sp.Margin
	entry.TwoWay = true
	entry.ThreadNeighbor = true
	entry.Timeout = ifc.cfg.ChildTimeout
	ifc.deps.Neighbors.Refresh(ext)
	if ifc.deps.Devices != nil {
		ifc.deps.Devices.Program(neighbor.Device{
			Ext:          ext,
			ShortAddress: short,
			FrameCounter: llfc,
			KeySequence:  msg.Security.KeySequence,
		})
	}

	needData := e.ingestDatasets(ifc, p)
	data, hasData := msg.Find(mle.TLVNetworkData)
	l := leader
	if hasData && !needData {
		if err := ifc.deps.NetworkData.Save(leader, data, !ifc.cfg.Mode.FullNetworkData()); err != nil {
			ifc.debugLog("network data not saved", "error", err)
		}
	} else {
		l.DataVersion--
		l.StableDataVersion--
		needData = true
	}
	ifc.setLeader(l, "child id response")
	ifc.activeRouters = sp.ActiveRouters
	ifc.routerIDSequence = sp.IDSequence

	ifc.parent = &ParentInfo{
		Ext:              ext,
		ShortAddress:     short,
		RouterID:         mle.RouterID(short),
		PathCostToLeader: linkquality.PathCost(sp.Margin, sp.RouteCostToLeader),
		Version:          sp.Version,
	}
	if route, ok := mle.ReadRoute64(p); ok && wasRouter {
		ifc.deps.Routing.ApplyRoute64(short, route, sp.Margin)
	}
	ifc.shortAddress = addr16
	ifc.deps.Routing.SetDefaultRoute(ext, short)
	ifc.deps.Blacklist.Update(ext, true)

	ifc.deps.Messages.Free(sp.ChildIDRequestID)
	ifc.takeCandidate()
	ifc.releasingRouterID = false
	ifc.recv = receiveGeneral

	ifc.logAt(slog.LevelInfo, "attached", "parent", ext, "short", addr16, "partition", leader.PartitionID)
	ifc.capture(log.Event{
		Direction:   log.DirectionLocal,
		Category:    log.CategoryState,
		Peer:        ext.String(),
		StateChange: &log.StateChangeEvent{Entity: log.StateEntityParent, NewState: "PARENT", Reason: "child id response"},
	})
	e.setState(ifc, StateConnected, "child id response")
	e.attachedReady(ifc)

	if needData {
		if err := e.sendDataRequest(ifc, ext); err != nil {
			ifc.debugLog("data request failed", "error", err)
		}
	}
}

// mergePrepare tears down the link to the previous parent, and the
// partition data when the new parent belongs to another partition.
func (e *Engine) mergePrepare(ifc *iface, sp *ScannedParent) {
	if ifc.parent != nil && ifc.parent.Ext != sp.Ext {
		ifc.deps.Neighbors.Remove(ifc.parent.Ext)
	}
	ifc.parent = nil
	ifc.deps.Routing.RemoveDefaultRoute()
	ifc.free(&ifc.childUpdateID)
	ifc.free(&ifc.dataRequestID)

	if ifc.leader != nil && !ifc.leader.SamePartition(sp.Leader) {
		ifc.deps.Routing.Purge()
		ifc.deps.NetworkData.Purge()
		ifc.leader = nil
	}
	if ifc.router {
		ifc.router = false
		ifc.deps.Routing.SetRouterID(0, false)
	}
}

// ingestDatasets processes the operational datasets carried in p. It
// reports whether the sender announced a newer dataset without including
// it, in which case network data must be requested again.
func (e *Engine) ingestDatasets(ifc *iface, p []byte) bool {
	nd := ifc.deps.NetworkData
	resync := false
	if ts, ok := mle.ReadTimestamp(p, mle.TLVActiveTimestamp); ok {
		if raw, ok := mle.FindTLV(p, mle.TLVActiveOperationalDataset); ok {
			nd.ProcessActive(ts, raw)
		} else if local, ok := nd.ActiveTimestamp(); !ok || ts.Compare(local) > 0 {
			resync = true
		}
	}
	if ts, ok := mle.ReadTimestamp(p, mle.TLVPendingTimestamp); ok {
		if raw, ok := mle.FindTLV(p, mle.TLVPendingOperationalDataset); ok {
			nd.ProcessPending(ts, raw)
		} else if local, ok := nd.PendingTimestamp(); !ok || ts.Compare(local) > 0 {
			resync = true
		}
	}
	return resync
}

// childIDTimeout handles the retransmission timer of the Child-ID request.
func (e *Engine) childIDTimeout(ifc *iface, msg *mle.Outbound, usedAllRetries bool) mle.RetryDecision {
	sp := ifc.scanned
	if sp == nil || sp.ChildIDRequestID != msg.ID {
		if sp == nil && ifc.state == StateChildIDRequest {
			ifc.recv = receiveGeneral
			e.connectionError(ifc, ErrorNetworkAttachFail, nil)
		}
		return mle.GiveUp
	}
	if !usedAllRetries {
		return mle.Retry
	}

	sp = ifc.takeCandidate()
	ifc.recv = receiveGeneral
	ifc.deps.Blacklist.Update(sp.Ext, false)
	ifc.logAt(slog.LevelInfo, "child id request unanswered", "ext", sp.Ext)

	if !ifc.prevState.attached() || ifc.leader == nil || !ifc.deps.Routing.HasRouteToLeader(ifc.leader.LeaderRouterID) {
		e.connectionError(ifc, ErrorNetworkAttachFail, &sp.Ext)
		return mle.GiveUp
	}
	if !ifc.leader.SamePartition(sp.Leader) && ifc.deps.Neighbors.Remove(sp.Ext) {
		if ifc.parent != nil && ifc.parent.Ext == sp.Ext {
			e.connectionError(ifc, ErrorNetworkAttachFail, &sp.Ext)
			return mle.GiveUp
		}
	}

	if ifc.router && mle.IsRouterAddress(ifc.shortAddress) {
		e.setState(ifc, StateConnectedRouter, "child id fallback")
	} else {
		e.setState(ifc, StateConnected, "child id fallback")
	}
	e.attachedReady(ifc)
	return mle.GiveUp
}
