package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mash-protocol/mle-go/pkg/linkquality"
	"github.com/mash-protocol/mle-go/pkg/log"
	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/neighbor"
)

// StartSynch resumes the link to the remembered parent after a reset by
// sending it a Child-Update-Request.
func (e *Engine) StartSynch(id mle.InterfaceID) error {
	ifc, err := e.lookup(id)
	if err != nil {
		return err
	}
	if ifc.parent == nil {
		return ErrNoParent
	}
	ifc.free(&ifc.synchRequestID)

	chal, err := ifc.challenge()
	if err != nil {
		return err
	}
	p := mle.AppendUint16(nil, mle.TLVSourceAddress, ifc.shortAddress)
	p = mle.AppendUint8(p, mle.TLVMode, uint8(ifc.cfg.Mode))
	p = mle.AppendTLV(p, mle.TLVChallenge, chal)
	p = mle.AppendUint32(p, mle.TLVTimeout, ifc.cfg.childTimeoutSeconds())
	p = mle.AppendRequest(p, ifc.requestedTLVs()...)
	if !ifc.cfg.Mode.FullDevice() {
		p = mle.AppendAddressRegistration(p, ifc.cfg.Addresses)
	}

	ifc.attemptID = log.NewAttemptID()
	msg, err := e.send(ifc, mle.CmdChildUpdateRequest, mle.LinkLocalFromExt(ifc.parent.Ext), p, mle.TimeoutSynch, ifc.cfg.Timeouts.Synch)
	if err != nil {
		return err
	}
	ifc.synchRequestID = msg.ID
	ifc.recv = receiveSynch
	ifc.debugLog("synchronizing with parent", "parent", ifc.parent.Ext)
	return nil
}

// synchResponse holds the validated content of a synchronization response.
type synchResponse struct {
	mode   mle.Mode
	short  uint16
	addr16 uint16
	leader mle.LeaderData
	llfc   uint32
	mlefc  uint32
}

func (ifc *iface) parseSynchResponse(msg *mle.Message) (synchResponse, error) {
	var r synchResponse
	p := msg.Payload
	if msg.Has(mle.TLVStatus) {
		return r, ErrRejectedByParent
	}
	mode, ok1 := mle.ReadUint8(p, mle.TLVMode)
	short, ok2 := mle.ReadUint16(p, mle.TLVSourceAddress)
	addr16, ok3 := mle.ReadUint16(p, mle.TLVAddress16)
	leader, ok4 := mle.ReadLeaderData(p)
	llfc, ok5 := mle.ReadUint32(p, mle.TLVLinkFrameCounter)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return r, ErrMissingTLV
	}
	if !ifc.cfg.Mode.FullDevice() {
		if v, ok := msg.Find(mle.TLVAddressRegistration); !ok || len(v) == 0 {
			return r, fmt.Errorf("%w: address registration", ErrMissingTLV)
		}
	}
	if msg.Security.KeyIDMode != mle.KeyIDModeSource4Index {
		return r, fmt.Errorf("%w: %d", ErrSecurityMode, msg.Security.KeyIDMode)
	}
	mlefc, ok := mle.ReadUint32(p, mle.TLVMLEFrameCounter)
	if !ok {
		mlefc = llfc
	}
	return synchResponse{
		mode:   mle.Mode(mode),
		short:  short,
		addr16: addr16,
		leader: leader,
		llfc:   llfc,
		mlefc:  mlefc,
	}, nil
}

// handleSynchResponse completes or fails the synchronization exchange.
func (e *Engine) handleSynchResponse(ifc *iface, msg *mle.Message) {
	ext, ok := msg.SourceExt()
	if ifc.synchRequestID == 0 || ifc.parent == nil || !ok || ext != ifc.parent.Ext {
		ifc.drop(msg, "not a synchronization response from the parent")
		return
	}
	resp, ok := msg.Find(mle.TLVResponse)
	if !ok || ifc.deps.Messages.ValidateResponse(ifc.id, resp) != ifc.synchRequestID {
		ifc.drop(msg, "challenge mismatch")
		return
	}

	r, err := ifc.parseSynchResponse(msg)
	if errors.Is(err, ErrSecurityMode) {
		ifc.drop(msg, err.Error())
		return
	}
	ifc.free(&ifc.synchRequestID)
	ifc.recv = receiveGeneral
	if err != nil {
		ifc.logAt(slog.LevelInfo, "synchronization failed", "error", err)
		ifc.capture(log.Event{
			Direction: log.DirectionLocal,
			Category:  log.CategoryError,
			Peer:      ext.String(),
			Error:     &log.ErrorEventData{Message: err.Error(), Context: "synchronization response"},
		})
		ifc.deps.Supervisor.DeviceSynchFail(ifc.id)
		return
	}

	entry, err := ifc.deps.Neighbors.LookupOrCreate(ext)
	if err != nil {
		ifc.logAt(slog.LevelWarn, "no neighbor slot for parent", "error", err)
		ifc.deps.Supervisor.DeviceSynchFail(ifc.id)
		return
	}
	margin := linkquality.ComputeLinkMargin(msg.DBM)
	entry.ShortAddress = r.short
	entry.Mode = r.mode
	entry.LinkFrameCounter = r.llfc
	entry.MLEFrameCounter = r.mlefc
	entry.KeySequence = msg.Security.KeySequence
	entry.KeyIndex = msg.Security.KeyIndex
	entry.LinkMargin = margin
	entry.TwoWay = true
	entry.ThreadNeighbor = true
	entry.Timeout = ifc.cfg.ChildTimeout
	ifc.deps.Neighbors.Refresh(ext)
	ifc.deps.Keys.Synchronize(msg.Security.KeySequence)
	if ifc.deps.Devices != nil {
		ifc.deps.Devices.Program(neighbor.Device{Ext: ext, ShortAddress: r.short, FrameCounter: r.llfc, KeySequence: msg.Security.KeySequence})
	}
	ifc.deps.Routing.UpdateLinkMargin(ext, margin)

	l := r.leader
	l.DataVersion--
	l.StableDataVersion--
	ifc.setLeader(l, "synchronization response")

	ifc.parent.ShortAddress = r.short
	ifc.parent.RouterID = mle.RouterID(r.short)
	ifc.shortAddress = r.addr16
	ifc.deps.Routing.SetDefaultRoute(ext, r.short)

	ifc.logAt(slog.LevelInfo, "synchronized", "parent", ext, "short", r.addr16)
	e.setState(ifc, StateConnected, "synchronization response")
	e.attachedReady(ifc)
	if err := e.sendDataRequest(ifc, ext); err != nil {
		ifc.debugLog("data request failed", "error", err)
	}
}

// synchTimeout handles the retransmission timer of the synchronization
// request.
func (e *Engine) synchTimeout(ifc *iface, msg *mle.Outbound, usedAllRetries bool) mle.RetryDecision {
	if msg.ID != ifc.synchRequestID {
		return mle.GiveUp
	}
	if !usedAllRetries {
		return mle.Retry
	}
	ifc.synchRequestID = 0
	ifc.recv = receiveGeneral
	ifc.logAt(slog.LevelInfo, "parent did not answer synchronization")
	ifc.deps.Supervisor.DeviceSynchFail(ifc.id)
	return mle.GiveUp
}

// SendDataRequest asks a neighbor for network data. A request already in
// flight is not duplicated.
func (e *Engine) SendDataRequest(id mle.InterfaceID, to mle.ExtAddress) error {
	ifc, err := e.lookup(id)
	if err != nil {
		return err
	}
	return e.sendDataRequest(ifc, to)
}

func (e *Engine) sendDataRequest(ifc *iface, to mle.ExtAddress) error {
	if ifc.dataRequestID != 0 {
		return nil
	}
	req := []mle.TLVType{mle.TLVNetworkData}
	if ifc.router {
		req = append(req, mle.TLVRoute64)
	}
	p := mle.AppendRequest(nil, req...)
	if ts, ok := ifc.deps.NetworkData.ActiveTimestamp(); ok {
		p = mle.AppendTimestamp(p, mle.TLVActiveTimestamp, ts)
	}
	if ts, ok := ifc.deps.NetworkData.PendingTimestamp(); ok {
		p = mle.AppendTimestamp(p, mle.TLVPendingTimestamp, ts)
	}
	msg, err := e.send(ifc, mle.CmdDataRequest, mle.LinkLocalFromExt(to), p, mle.TimeoutDataRequest, ifc.cfg.Timeouts.DataRequest)
	if err != nil {
		return err
	}
	ifc.dataRequestID = msg.ID
	return nil
}

func (e *Engine) dataRequestTimeout(ifc *iface, msg *mle.Outbound, usedAllRetries bool) mle.RetryDecision {
	if msg.ID != ifc.dataRequestID {
		return mle.GiveUp
	}
	if !usedAllRetries {
		return mle.Retry
	}
	ifc.dataRequestID = 0
	ifc.debugLog("data request unanswered")
	return mle.GiveUp
}
