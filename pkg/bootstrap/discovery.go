package bootstrap

import (
	"log/slog"

	"github.com/mash-protocol/mle-go/pkg/linkquality"
	"github.com/mash-protocol/mle-go/pkg/log"
	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/serialnum"
)

// StartAttach starts an attach attempt in the given mode by sending a
// Parent-Request. An error means no request went out and the caller must
// retry later.
func (e *Engine) StartAttach(id mle.InterfaceID, mode AttachMode) error {
	ifc, err := e.lookup(id)
	if err != nil {
		return err
	}
	ifc.attachMode = mode
	ifc.prevState = ifc.state
	ifc.attemptID = log.NewAttemptID()
	e.setState(ifc, mode.State(), "start attach")
	return e.beginParentScan(ifc)
}

// clearQueue drops every queued message of the interface together with
// the ids referring to them.
func (e *Engine) clearQueue(ifc *iface) {
	ifc.deps.Messages.ClearQueue(ifc.id)
	ifc.parentRequestID = 0
	ifc.childUpdateID = 0
	ifc.synchRequestID = 0
	ifc.dataRequestID = 0
	if ifc.parent != nil {
		ifc.parent.ChildUpdateProcessActive = false
		ifc.parent.ChildUpdatePending = false
	}
	if sp := ifc.takeCandidate(); sp != nil {
		ifc.debugLog("candidate dropped", "ext", sp.Ext)
	}
}

func (e *Engine) beginParentScan(ifc *iface) error {
	e.clearQueue(ifc)
	ifc.recv = receiveGeneral

	chal, err := ifc.challenge()
	if err != nil {
		return err
	}
	mask := mle.ScanMaskRouters
	if ifc.attachMode == AttachReattachRetry || ifc.attachMode == AttachAny {
		mask |= mle.ScanMaskREEDs
	}

	p := mle.AppendUint8(nil, mle.TLVMode, uint8(ifc.cfg.Mode))
	p = mle.AppendTLV(p, mle.TLVChallenge, chal)
	p = mle.AppendUint8(p, mle.TLVScanMask, mask)
	p = mle.AppendUint16(p, mle.TLVVersion, ifc.cfg.ThreadVersion)

	msg, err := e.send(ifc, mle.CmdParentRequest, mle.AllRoutersMulticast, p, mle.TimeoutParentRequest, ifc.cfg.Timeouts.ParentRequest)
	if err != nil {
		ifc.logAt(slog.LevelWarn, "parent request failed", "error", err)
		return err
	}
	ifc.parentRequestID = msg.ID
	ifc.scanRetryCount = 1
	e.setState(ifc, StateMLEScan, "parent request sent")
	return nil
}

// scanTimeout handles the retransmission timer of the Parent-Request.
func (e *Engine) scanTimeout(ifc *iface, msg *mle.Outbound, usedAllRetries bool) mle.RetryDecision {
	if msg.ID != ifc.parentRequestID {
		return mle.GiveUp
	}

	if ifc.scanned != nil {
		ifc.parentRequestID = 0
		e.setState(ifc, StateAttachReady, "candidate selected")
		if err := e.sendChildIDRequest(ifc); err != nil {
			ifc.logAt(slog.LevelWarn, "child id request failed", "error", err)
			sp := ifc.takeCandidate()
			e.connectionError(ifc, ErrorNetworkAttachFail, &sp.Ext)
		}
		return mle.Handled
	}

	if !usedAllRetries {
		mask, _ := mle.ReadUint8(msg.Payload, mle.TLVScanMask)
		mle.SetUint8(msg.Payload, mle.TLVScanMask, mask|mle.ScanMaskREEDs)
		ifc.scanRetryCount++
		ifc.debugLog("parent scan retry", "count", ifc.scanRetryCount)
		return mle.Retry
	}

	ifc.parentRequestID = 0
	if ifc.prevState.attached() {
		e.setState(ifc, ifc.prevState, "no better parent")
		e.attachedReady(ifc)
		return mle.GiveUp
	}
	e.connectionError(ifc, ErrorNetworkAttachFail, nil)
	return mle.GiveUp
}

// handleParentResponse evaluates a Parent-Response against the filters of
// the current attach mode and keeps it when it beats the held candidate.
func (e *Engine) handleParentResponse(ifc *iface, msg *mle.Message) {
	p := msg.Payload
	resp, ok := msg.Find(mle.TLVResponse)
	if !ok || ifc.parentRequestID == 0 || ifc.deps.Messages.ValidateResponse(ifc.id, resp) != ifc.parentRequestID {
		ifc.drop(msg, "no matching parent request")
		return
	}

	leader, ok1 := mle.ReadLeaderData(p)
	reported, ok2 := mle.ReadUint8(p, mle.TLVLinkMargin)
	conn, ok3 := mle.ReadConnectivity(p)
	short, ok4 := mle.ReadUint16(p, mle.TLVSourceAddress)
	version, ok5 := mle.ReadUint16(p, mle.TLVVersion)
	llfc, ok6 := mle.ReadUint32(p, mle.TLVLinkFrameCounter)
	chal, ok7 := msg.Find(mle.TLVChallenge)
	ext, ok8 := msg.SourceExt()
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 || !ok8 {
		ifc.drop(msg, "missing mandatory TLV")
		return
	}
	mlefc, ok := mle.ReadUint32(p, mle.TLVMLEFrameCounter)
	if !ok {
		mlefc = llfc
	}

	if reason := e.partitionFilter(ifc, leader, conn); reason != "" {
		ifc.drop(msg, reason)
		return
	}
	if ifc.deps.Blacklist.Reject(ext) {
		ifc.drop(msg, "blacklisted")
		return
	}

	margin, quality := linkquality.Measure(msg.DBM, reported)
	if quality == linkquality.QualityBad {
		ifc.drop(msg, "bad link quality")
		return
	}
	if ifc.scanRetryCount <= 1 && quality < linkquality.Quality20dB {
		ifc.drop(msg, "link quality below 20dB on first scan")
		return
	}
	if ifc.cfg.CCM && ifc.cfg.RouterCapable && leader.Weighting < ifc.cfg.PartitionWeighting {
		ifc.drop(msg, "partition weighting below own")
		return
	}

	sp := &ScannedParent{
		Ext:                  ext,
		ShortAddress:         short,
		Leader:               leader,
		Version:              version,
		LinkMarginToParent:   linkquality.ComputeLinkMargin(msg.DBM),
		LinkMarginFromParent: reported,
		Margin:               margin,
		Quality:              quality,
		RouteCostToLeader:    conn.LeaderCost,
		LinkQuality3:         conn.LinkQuality3,
		LinkQuality2:         conn.LinkQuality2,
		LinkQuality1:         conn.LinkQuality1,
		ParentPriority:       conn.ParentPriority,
		ActiveRouters:        conn.ActiveRouters,
		IDSequence:           conn.IDSequence,
		Challenge:            append([]byte(nil), chal...),
		LinkFrameCounter:     llfc,
		MLEFrameCounter:      mlefc,
		KeySequence:          msg.Security.KeySequence,
		KeyIndex:             msg.Security.KeyIndex,
	}
	if cur := ifc.scanned; cur != nil && !sp.preferredOver(cur, ifc.cfg.ThreadVersion) {
		ifc.drop(msg, "held candidate preferred")
		return
	}

	ifc.setCandidate(sp)
	ifc.deps.Routing.UpdateLinkMargin(ext, margin)
	ifc.debugLog("parent candidate", "ext", ext, "short", short, "quality", quality,
		"partition", leader.PartitionID, "weighting", leader.Weighting)
	ifc.capture(log.Event{
		Direction:   log.DirectionLocal,
		Category:    log.CategoryState,
		Peer:        ext.String(),
		StateChange: &log.StateChangeEvent{Entity: log.StateEntityParent, NewState: "CANDIDATE", Reason: quality.String()},
	})
}

// partitionFilter applies the partition rules of the attach mode. It
// returns the drop reason, or "" to accept.
func (e *Engine) partitionFilter(ifc *iface, heard mle.LeaderData, conn mle.Connectivity) string {
	switch {
	case ifc.attachMode == AttachReattach || ifc.attachMode == AttachReattachRetry:
		if ifc.leader == nil || !ifc.leader.SamePartition(heard) {
			return "other partition while reattaching"
		}
		if !ifc.releasingRouterID && !serialnum.Greater8(conn.IDSequence, ifc.routerIDSequence) {
			return "router id sequence not newer"
		}
	case ifc.attachMode == AttachAny || ifc.prevState == StateConnected || ifc.prevState == StateConnectedRouter:
		if ifc.leader == nil {
			ifc.logAt(slog.LevelError, "no leader data while attaching to another partition")
			return ""
		}
		if ifc.leader.SamePartition(heard) {
			return "own partition"
		}
	}
	return ""
}
