package bootstrap

import (
	"net/netip"

	"github.com/mash-protocol/mle-go/pkg/mle"
)

// handleChildUpdateRequest answers a Child-Update-Request. Requests from
// anyone but the parent get a negative response.
func (e *Engine) handleChildUpdateRequest(ifc *iface, msg *mle.Message) {
	p := msg.Payload
	chal, hasChal := msg.Find(mle.TLVChallenge)
	ext, ok := msg.SourceExt()
	if ifc.parent == nil || !ok || ext != ifc.parent.Ext {
		if hasChal {
			if err := e.sendChildUpdateNegativeResponse(ifc, msg.Source, chal); err != nil {
				ifc.debugLog("negative response failed", "error", err)
			}
			return
		}
		ifc.drop(msg, "child update request not from parent")
		return
	}
	ifc.deps.Neighbors.Refresh(ext)

	if heard, ok := mle.ReadLeaderData(p); ok {
		if ifc.leader != nil && !ifc.leader.SamePartition(heard) {
			ifc.deps.Routing.Purge()
		}
		if e.ingestDatasets(ifc, p) {
			ifc.reconcileLeader(heard)
			if err := e.sendDataRequest(ifc, ext); err != nil {
				ifc.debugLog("data request failed", "error", err)
			}
		} else if msg.Has(mle.TLVNetworkData) {
			e.commitNetworkData(ifc, ext, msg, heard)
		} else {
			e.followLeader(ifc, ext, heard)
		}
	}

	out := mle.AppendUint16(nil, mle.TLVSourceAddress, ifc.shortAddress)
	out = mle.AppendUint8(out, mle.TLVMode, uint8(ifc.cfg.Mode))
	if hasChal {
		out = mle.AppendTLV(out, mle.TLVResponse, chal)
		out = mle.AppendUint32(out, mle.TLVLinkFrameCounter, ifc.frameCounter)
		out = mle.AppendUint32(out, mle.TLVMLEFrameCounter, ifc.frameCounter)
	}
	if t, ok := mle.ReadUint32(p, mle.TLVTimeout); ok {
		out = mle.AppendUint32(out, mle.TLVTimeout, t)
	}
	if req, ok := mle.ReadRequest(p); ok {
		for _, t := range req {
			switch t {
			case mle.TLVTimeout:
				if !mle.HasTLV(out, mle.TLVTimeout) {
					out = mle.AppendUint32(out, mle.TLVTimeout, ifc.cfg.childTimeoutSeconds())
				}
			case mle.TLVAddressRegistration:
				if !ifc.cfg.Mode.FullDevice() {
					out = mle.AppendAddressRegistration(out, ifc.cfg.Addresses)
				}
			}
		}
	}
	if ifc.leader != nil {
		out = mle.AppendLeaderData(out, *ifc.leader)
	}
	if _, err := e.send(ifc, mle.CmdChildUpdateResponse, msg.Source, out, mle.TimeoutNone, mle.TimeoutParams{}); err != nil {
		ifc.debugLog("child update response failed", "error", err)
	}
}

// SendChildUpdateNegativeResponse tells dst that it is not a child of this
// node, echoing its challenge.
func (e *Engine) SendChildUpdateNegativeResponse(id mle.InterfaceID, dst netip.Addr, challenge []byte) error {
	ifc, err := e.lookup(id)
	if err != nil {
		return err
	}
	return e.sendChildUpdateNegativeResponse(ifc, dst, challenge)
}

func (e *Engine) sendChildUpdateNegativeResponse(ifc *iface, dst netip.Addr, challenge []byte) error {
	p := mle.AppendUint8(nil, mle.TLVStatus, mle.StatusError)
	p = mle.AppendTLV(p, mle.TLVResponse, challenge)
	_, err := e.send(ifc, mle.CmdChildUpdateResponse, dst, p, mle.TimeoutNone, mle.TimeoutParams{})
	return err
}
