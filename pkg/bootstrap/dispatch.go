package bootstrap

import (
	"log/slog"
	"net/netip"

	"github.com/mash-protocol/mle-go/pkg/leaderdata"
	"github.com/mash-protocol/mle-go/pkg/linkquality"
	"github.com/mash-protocol/mle-go/pkg/log"
	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/neighbor"
)

// HandleMessage dispatches a received message of a registered interface.
// While a Child-ID or synchronization exchange is pending only its
// response is accepted.
func (e *Engine) HandleMessage(msg *mle.Message) {
	ifc, ok := e.ifaces[msg.Interface]
	if !ok {
		return
	}
	ev := log.Event{
		Direction: log.DirectionIn,
		Category:  log.CategoryMessage,
		Message:   log.NewMessageEvent(msg.Command, 0, msg.Payload),
	}
	ev.Message.DBM = msg.DBM
	if ext, ok := msg.SourceExt(); ok {
		ev.Peer = ext.String()
	}
	ifc.capture(ev)

	switch ifc.recv {
	case receiveChildID:
		if msg.Command == mle.CmdChildIDResponse {
			e.handleChildIDResponse(ifc, msg)
		} else {
			ifc.drop(msg, "child id response pending")
		}
		return
	case receiveSynch:
		if msg.Command == mle.CmdChildUpdateResponse {
			e.handleSynchResponse(ifc, msg)
		} else {
			ifc.drop(msg, "synchronization pending")
		}
		return
	}

	switch msg.Command {
	case mle.CmdLinkAccept, mle.CmdLinkAcceptAndRequest:
		e.handleLinkAccept(ifc, msg)
	case mle.CmdLinkReject:
		e.handleLinkReject(ifc, msg)
	case mle.CmdAnnounce:
		e.handleAnnounce(ifc, msg)
	case mle.CmdAdvertisement:
		e.handleAdvertisement(ifc, msg)
	case mle.CmdDataResponse:
		e.handleDataResponse(ifc, msg)
	case mle.CmdChildUpdateResponse:
		e.handleChildUpdateResponse(ifc, msg)
	case mle.CmdParentResponse:
		e.handleParentResponse(ifc, msg)
	default:
		e.handleOther(ifc, msg)
	}
}

// HandleTimeout dispatches a retransmission timeout by its kind.
func (e *Engine) HandleTimeout(msg *mle.Outbound, usedAllRetries bool) mle.RetryDecision {
	ifc, ok := e.ifaces[msg.Interface]
	if !ok {
		return mle.GiveUp
	}
	var d mle.RetryDecision
	switch msg.Kind {
	case mle.TimeoutParentRequest:
		d = e.scanTimeout(ifc, msg, usedAllRetries)
	case mle.TimeoutChildIDRequest:
		d = e.childIDTimeout(ifc, msg, usedAllRetries)
	case mle.TimeoutChildUpdate:
		d = e.childUpdateTimeout(ifc, msg, usedAllRetries)
	case mle.TimeoutSynch:
		d = e.synchTimeout(ifc, msg, usedAllRetries)
	case mle.TimeoutDataRequest:
		d = e.dataRequestTimeout(ifc, msg, usedAllRetries)
	default:
		d = mle.GiveUp
	}
	ifc.capture(log.Event{
		Direction: log.DirectionLocal,
		Category:  log.CategoryTimeout,
		Timeout:   &log.TimeoutEvent{Kind: msg.Kind, MessageID: msg.ID, UsedAllRetries: usedAllRetries, Decision: d},
	})
	return d
}

func (e *Engine) handleLinkAccept(ifc *iface, msg *mle.Message) {
	p := msg.Payload
	resp, ok := msg.Find(mle.TLVResponse)
	if !ok || ifc.deps.Messages.ValidateResponse(ifc.id, resp) == 0 {
		ifc.drop(msg, "no matching link request")
		return
	}
	version, ok1 := mle.ReadUint16(p, mle.TLVVersion)
	llfc, ok2 := mle.ReadUint32(p, mle.TLVLinkFrameCounter)
	short, ok3 := mle.ReadUint16(p, mle.TLVSourceAddress)
	ext, ok4 := msg.SourceExt()
	if !ok1 || !ok2 || !ok3 || !ok4 {
		ifc.drop(msg, "missing mandatory TLV")
		return
	}
	mlefc, ok := mle.ReadUint32(p, mle.TLVMLEFrameCounter)
	if !ok {
		mlefc = llfc
	}

	entry, exists := ifc.deps.Neighbors.Lookup(ext)
	if !exists {
		if !ifc.cfg.LinkPolicy.allows(short) {
			ifc.drop(msg, "link policy")
			return
		}
		var err error
		entry, err = ifc.deps.Neighbors.LookupOrCreate(ext)
		if err != nil {
			ifc.logAt(slog.LevelWarn, "rejecting link", "ext", ext, "error", err)
			e.sendLinkReject(ifc, msg.Source)
			return
		}
	}

	margin := linkquality.ComputeLinkMargin(msg.DBM)
	entry.ShortAddress = short
	entry.Version = version
	entry.LinkFrameCounter = llfc
	entry.MLEFrameCounter = mlefc
	entry.KeySequence = msg.Security.KeySequence
	entry.KeyIndex = msg.Security.KeyIndex
	entry.LinkMargin = margin
	entry.ThreadNeighbor = true
	entry.TwoWay = ifc.router && mle.IsRouterAddress(short)
	if mode, ok := mle.ReadUint8(p, mle.TLVMode); ok {
		entry.Mode = mle.Mode(mode)
	}
	ifc.deps.Neighbors.Refresh(ext)
	ifc.deps.Routing.UpdateLinkMargin(ext, margin)
	if ifc.deps.Devices != nil {
		ifc.deps.Devices.Program(neighbor.Device{Ext: ext, ShortAddress: short, FrameCounter: llfc, KeySequence: msg.Security.KeySequence})
	}
	ifc.deps.Blacklist.Update(ext, true)
	ifc.debugLog("link accepted", "ext", ext, "short", short, "two_way", entry.TwoWay)

	if msg.Command == mle.CmdLinkAcceptAndRequest && ifc.router && ifc.deps.Router != nil {
		ifc.deps.Router.HandleRouterMessage(ifc.id, msg)
	}
}

func (e *Engine) sendLinkReject(ifc *iface, dst netip.Addr) {
	p := mle.AppendUint8(nil, mle.TLVStatus, mle.StatusError)
	if _, err := e.send(ifc, mle.CmdLinkReject, dst, p, mle.TimeoutNone, mle.TimeoutParams{}); err != nil {
		ifc.debugLog("link reject failed", "error", err)
	}
}

func (e *Engine) handleLinkReject(ifc *iface, msg *mle.Message) {
	ext, ok := msg.SourceExt()
	if !ok {
		ifc.drop(msg, "no source")
		return
	}
	if ifc.deps.Neighbors.Remove(ext) {
		ifc.debugLog("link rejected", "ext", ext)
	}
}

func (e *Engine) handleAnnounce(ifc *iface, msg *mle.Message) {
	p := msg.Payload
	ts, ok1 := mle.ReadTimestamp(p, mle.TLVActiveTimestamp)
	ch, ok2 := mle.ReadChannel(p)
	pan, ok3 := mle.ReadUint16(p, mle.TLVPANID)
	if !ok1 || !ok2 || !ok3 {
		ifc.drop(msg, "missing mandatory TLV")
		return
	}
	if local, ok := ifc.deps.NetworkData.ActiveTimestamp(); ok {
		switch ts.Compare(local) {
		case 0:
			return
		case -1:
			e.sendAnnounce(ifc)
			return
		}
	}
	ifc.logAt(slog.LevelInfo, "newer dataset announced", "channel", ch.Channel, "pan", pan)
	ifc.deps.Supervisor.TemporaryAttach(ifc.id, ch, pan, ts)
}

// sendAnnounce advertises the local active dataset on the current channel.
func (e *Engine) sendAnnounce(ifc *iface) {
	ds, ok := ifc.deps.NetworkData.Active()
	if !ok {
		return
	}
	p := mle.AppendChannel(nil, ds.Channel)
	p = mle.AppendTimestamp(p, mle.TLVActiveTimestamp, ds.Timestamp)
	p = mle.AppendUint16(p, mle.TLVPANID, ds.PANID)
	if _, err := e.send(ifc, mle.CmdAnnounce, mle.AllNodesMulticast, p, mle.TimeoutNone, mle.TimeoutParams{}); err != nil {
		ifc.debugLog("announce failed", "error", err)
	}
}

func (e *Engine) handleAdvertisement(ifc *iface, msg *mle.Message) {
	if !ifc.cfg.Mode.RxOnWhenIdle() || !ifc.state.attached() {
		return
	}
	p := msg.Payload
	heard, ok1 := mle.ReadLeaderData(p)
	short, ok2 := mle.ReadUint16(p, mle.TLVSourceAddress)
	ext, ok3 := msg.SourceExt()
	if !ok1 || !ok2 || !ok3 {
		ifc.drop(msg, "missing mandatory TLV")
		return
	}
	route, hasRoute := mle.ReadRoute64(p)
	if mle.IsRouterAddress(short) && !hasRoute {
		ifc.drop(msg, "router advertisement without route")
		return
	}
	if msg.Security.KeyIDMode == mle.KeyIDModeSource4Index && ifc.deps.Keys.Synchronize(msg.Security.KeySequence) {
		ifc.debugLog("key sequence switched", "sequence", msg.Security.KeySequence)
	}
	margin := linkquality.ComputeLinkMargin(msg.DBM)

	if !ifc.router {
		if ifc.parent != nil && ifc.parent.Ext == ext {
			if !e.parentAdvertisement(ifc, ext, short, heard) {
				return
			}
		} else if ifc.role() == RoleREED && ifc.leader != nil && !ifc.leader.SamePartition(heard) {
			if leaderdata.ConsiderMerge(*ifc.leader, short, heard, ifc.versionAware()) {
				e.connectionError(ifc, ErrorPartitionMerge, &ext)
				return
			}
		}
	} else {
		entry, exists := ifc.deps.Neighbors.Lookup(ext)
		if !exists && ifc.cfg.LinkPolicy.allows(short) {
			var err error
			if entry, err = ifc.deps.Neighbors.LookupOrCreate(ext); err != nil {
				ifc.debugLog("no neighbor slot", "ext", ext, "error", err)
				entry = nil
			}
		}
		if entry != nil {
			entry.ShortAddress = short
			entry.LinkMargin = margin
			entry.ThreadNeighbor = true
			ifc.deps.Neighbors.Refresh(ext)
			ifc.deps.Routing.UpdateLinkMargin(ext, margin)
		}

		var heardRouters uint8
		if route != nil {
			heardRouters = uint8(len(route.Entries))
		}
		switch leaderdata.MergeOrRequest(ifc.leader, ifc.activeRouters, heard, heardRouters, route) {
		case leaderdata.DecisionReject:
			ifc.drop(msg, "invalid leader data")
			return
		case leaderdata.DecisionMerge:
			e.connectionError(ifc, ErrorPartitionMerge, &ext)
			return
		case leaderdata.DecisionUpdate:
			if entry != nil && entry.TwoWay {
				if err := e.sendDataRequest(ifc, ext); err != nil {
					ifc.debugLog("data request failed", "error", err)
				}
			}
		}
	}

	if route != nil && ifc.leader != nil && ifc.leader.SamePartition(heard) {
		ifc.deps.Routing.ApplyRoute64(short, route, margin)
		if ifc.router {
			ifc.activeRouters = uint8(len(route.Entries))
		}
	}
}

// parentAdvertisement follows leader data advertised by the parent. It
// returns false when the advertisement ended the attachment.
func (e *Engine) parentAdvertisement(ifc *iface, ext mle.ExtAddress, short uint16, heard mle.LeaderData) bool {
	if ifc.leader != nil && ifc.leader.SamePartition(heard) && short != ifc.parent.ShortAddress {
		e.connectionError(ifc, ErrorShortAddressChanged, &ext)
		return false
	}
	ifc.deps.Neighbors.Refresh(ext)
	e.followLeader(ifc, ext, heard)
	return true
}

// followLeader folds leader data heard from the parent or a partition
// peer into the local copy and requests network data when it is stale.
func (e *Engine) followLeader(ifc *iface, from mle.ExtAddress, heard mle.LeaderData) {
	if ifc.leader != nil && !ifc.leader.SamePartition(heard) {
		ifc.debugLog("partition changed", "partition", heard.PartitionID, "weighting", heard.Weighting)
		ifc.deps.Routing.Purge()
	}
	if ifc.reconcileLeader(heard) {
		if err := e.sendDataRequest(ifc, from); err != nil {
			ifc.debugLog("data request failed", "error", err)
		}
	}
}

// acceptsDataFrom applies the role gate of data responses.
func (ifc *iface) acceptsDataFrom(ext mle.ExtAddress, heard mle.LeaderData) bool {
	if ifc.cfg.Mode.FullDevice() {
		if ifc.parent != nil && ifc.parent.Ext == ext {
			return true
		}
		return ifc.leader != nil && ifc.leader.SamePartition(heard)
	}
	_, ok := ifc.deps.Neighbors.Lookup(ext)
	return ok
}

func (e *Engine) handleDataResponse(ifc *iface, msg *mle.Message) {
	if !ifc.state.attached() {
		ifc.drop(msg, "not attached")
		return
	}
	p := msg.Payload
	ext, ok1 := msg.SourceExt()
	heard, ok2 := mle.ReadLeaderData(p)
	if !ok1 || !ok2 {
		ifc.drop(msg, "missing mandatory TLV")
		return
	}
	if !ifc.acceptsDataFrom(ext, heard) {
		ifc.drop(msg, "unexpected sender")
		return
	}
	if ifc.leader != nil && ifc.leader.PartitionID != heard.PartitionID {
		ifc.deps.Routing.Purge()
	}
	ifc.free(&ifc.dataRequestID)

	if e.ingestDatasets(ifc, p) {
		if err := e.sendDataRequest(ifc, ext); err != nil {
			ifc.debugLog("data request failed", "error", err)
		}
		return
	}
	e.commitNetworkData(ifc, ext, msg, heard)
}

// commitNetworkData reconciles heard leader data and saves the network
// data carried in msg. A newer version heard without usable network data
// is requested from the sender.
func (e *Engine) commitNetworkData(ifc *iface, from mle.ExtAddress, msg *mle.Message, heard mle.LeaderData) {
	refresh := ifc.reconcileLeader(heard)
	committed := false
	if data, ok := msg.Find(mle.TLVNetworkData); ok {
		if err := ifc.deps.NetworkData.Save(heard, data, !ifc.cfg.Mode.FullNetworkData()); err != nil {
			ifc.debugLog("network data not saved", "error", err)
		} else {
			leaderdata.Advance(ifc.leader, heard)
			ifc.deps.NetworkData.NotifyChanged()
			committed = true
		}
	}
	if refresh && !committed {
		if err := e.sendDataRequest(ifc, from); err != nil {
			ifc.debugLog("data request failed", "error", err)
		}
	}
	if ifc.leaderRestartResync {
		ifc.leaderRestartResync = false
		ifc.deps.NetworkData.NotifyChanged()
	}
}

func (e *Engine) handleChildUpdateResponse(ifc *iface, msg *mle.Message) {
	ext, ok := msg.SourceExt()
	if ifc.parent == nil || !ok || ext != ifc.parent.Ext {
		ifc.drop(msg, "not from parent")
		return
	}
	if st, ok := mle.ReadUint8(msg.Payload, mle.TLVStatus); ok && st == mle.StatusError {
		ifc.free(&ifc.childUpdateID)
		ifc.parent.ChildUpdateProcessActive = false
		ifc.parent.ChildUpdatePending = false
		ifc.setFastPoll(false)
		e.connectionError(ifc, ErrorParentLost, &ext)
		return
	}
	ifc.deps.Neighbors.Refresh(ext)
	if heard, ok := mle.ReadLeaderData(msg.Payload); ok {
		e.followLeader(ifc, ext, heard)
	}
	e.childUpdateDone(ifc)
}

// handleOther routes the remaining commands: router nodes hand them to the
// router handler, children answer Child-Update-Requests of the parent.
func (e *Engine) handleOther(ifc *iface, msg *mle.Message) {
	if ifc.router && ifc.deps.Router != nil {
		ifc.deps.Router.HandleRouterMessage(ifc.id, msg)
		return
	}
	if msg.Command == mle.CmdChildUpdateRequest {
		e.handleChildUpdateRequest(ifc, msg)
		return
	}
	ifc.drop(msg, "unhandled command")
}
