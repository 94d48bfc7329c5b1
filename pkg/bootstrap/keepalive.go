package bootstrap

import (
	"log/slog"

	"github.com/mash-protocol/mle-go/pkg/mle"
)

// TriggerChildUpdate refreshes the link to the parent with a
// Child-Update-Request. While one is in flight, further calls only mark a
// follow-up as pending.
func (e *Engine) TriggerChildUpdate(id mle.InterfaceID, parent mle.ExtAddress) error {
	ifc, err := e.lookup(id)
	if err != nil {
		return err
	}
	if ifc.parent == nil {
		return ErrNoParent
	}
	if ifc.parent.Ext != parent {
		return ErrNotParent
	}
	return e.triggerChildUpdate(ifc)
}

func (e *Engine) triggerChildUpdate(ifc *iface) error {
	par := ifc.parent
	if par.ChildUpdateProcessActive {
		par.ChildUpdatePending = true
		return nil
	}

	p := mle.AppendUint8(nil, mle.TLVMode, uint8(ifc.cfg.Mode))
	p = mle.AppendUint16(p, mle.TLVSourceAddress, ifc.shortAddress)
	p = mle.AppendUint32(p, mle.TLVTimeout, ifc.cfg.childTimeoutSeconds())
	if ifc.leader != nil {
		p = mle.AppendLeaderData(p, *ifc.leader)
	}
	if !ifc.cfg.Mode.FullDevice() {
		p = mle.AppendAddressRegistration(p, ifc.cfg.Addresses)
	}

	msg, err := e.send(ifc, mle.CmdChildUpdateRequest, mle.LinkLocalFromExt(par.Ext), p, mle.TimeoutChildUpdate, ifc.cfg.Timeouts.ChildUpdate)
	if err != nil {
		return err
	}
	ifc.childUpdateID = msg.ID
	par.ChildUpdateProcessActive = true
	par.ChildUpdatePending = false
	ifc.setFastPoll(true)
	return nil
}

func (ifc *iface) setFastPoll(enable bool) {
	if ifc.deps.Poller != nil {
		ifc.deps.Poller.SetFastPoll(ifc.id, enable)
	}
}

// childUpdateTimeout handles the retransmission timer of the keep-alive.
func (e *Engine) childUpdateTimeout(ifc *iface, msg *mle.Outbound, usedAllRetries bool) mle.RetryDecision {
	if msg.ID != ifc.childUpdateID {
		return mle.GiveUp
	}
	par := ifc.parent
	if !usedAllRetries && par != nil && par.ChildUpdateProcessActive {
		return mle.Retry
	}

	ifc.childUpdateID = 0
	if par != nil {
		par.ChildUpdateProcessActive = false
		par.ChildUpdatePending = false
	}
	ifc.setFastPoll(false)
	if !usedAllRetries {
		return mle.GiveUp
	}
	ifc.logAt(slog.LevelWarn, "parent stopped answering child updates")
	ifc.deps.Supervisor.ResetBootstrap(ifc.id)
	return mle.GiveUp
}

// childUpdateDone ends a keep-alive exchange and starts the pending
// follow-up, if any.
func (e *Engine) childUpdateDone(ifc *iface) {
	ifc.free(&ifc.childUpdateID)
	par := ifc.parent
	if par == nil {
		return
	}
	par.ChildUpdateProcessActive = false
	ifc.setFastPoll(false)
	if par.ChildUpdatePending {
		par.ChildUpdatePending = false
		if err := e.triggerChildUpdate(ifc); err != nil {
			ifc.debugLog("follow-up child update failed", "error", err)
		}
	}
}
