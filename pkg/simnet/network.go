package simnet

import (
	"sort"
	"time"

	"github.com/mash-protocol/mle-go/pkg/mle"
)

// Parent is a scripted router answering the node under test.
type Parent struct {
	Ext          mle.ExtAddress
	ShortAddress uint16
	Leader       mle.LeaderData
	Connectivity mle.Connectivity
	Version      uint16

	// DBM is the signal strength of the parent's frames at the node.
	DBM int8

	// LinkMargin is the margin the parent reports for the node's frames.
	LinkMargin uint8

	KeySequence  uint32
	FrameCounter uint32
	NetworkData  []byte

	// Routes are further entries of the parent's Route64 TLV. The parent
	// always lists itself.
	Routes []mle.RouteEntry

	// ChildAddress is the short address assigned in Child-ID responses.
	// Zero assigns the parent's first child address.
	ChildAddress uint16

	// The Ignore flags silence the parent for the respective exchange.
	IgnoreParentRequest bool
	IgnoreChildID       bool
	IgnoreChildUpdate   bool
	IgnoreDataRequest   bool

	// RejectChildUpdate answers Child-Update-Requests with an error status.
	RejectChildUpdate bool
}

func (p *Parent) childAddress() uint16 {
	if p.ChildAddress != 0 {
		return p.ChildAddress
	}
	return p.ShortAddress | 1
}

func (p *Parent) challenge() []byte {
	c := make([]byte, 8)
	copy(c, p.Ext[:])
	c[7] ^= byte(p.FrameCounter)
	return c
}

func (p *Parent) nextFrameCounter() uint32 {
	p.FrameCounter++
	return p.FrameCounter
}

// Network connects scripted parents to one interface of a Service.
type Network struct {
	svc     *Service
	iface   mle.InterfaceID
	parents []*Parent
	queue   []*mle.Message
}

// NewNetwork creates a network on interface iface of svc.
func NewNetwork(svc *Service, iface mle.InterfaceID) *Network {
	return &Network{svc: svc, iface: iface}
}

// AddParent adds a scripted parent.
func (n *Network) AddParent(p *Parent) {
	n.parents = append(n.parents, p)
}

// Parents returns the scripted parents.
func (n *Network) Parents() []*Parent {
	return n.parents
}

// Inject queues a message for delivery to the node.
func (n *Network) Inject(msg *mle.Message) {
	msg.Interface = n.iface
	n.queue = append(n.queue, msg)
}

// Step answers the pending transmissions of the node and delivers queued
// messages. It returns the number of messages delivered.
func (n *Network) Step() int {
	for _, tx := range n.svc.TakeOutbox() {
		if tx.Interface != n.iface {
			continue
		}
		n.answer(tx)
	}
	queue := n.queue
	n.queue = nil
	for _, msg := range queue {
		n.svc.Deliver(msg)
	}
	return len(queue)
}

// RunUntilIdle steps until no messages are exchanged.
func (n *Network) RunUntilIdle() {
	for i := 0; i < 1000; i++ {
		if n.Step() == 0 && len(n.svc.outbox) == 0 {
			return
		}
	}
}

// RunFor advances the clock by d in steps of tick, exchanging messages
// between steps.
func (n *Network) RunFor(d, tick time.Duration) {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	for elapsed := time.Duration(0); elapsed < d; elapsed += tick {
		n.RunUntilIdle()
		n.svc.Advance(tick)
	}
	n.RunUntilIdle()
}

func (n *Network) answer(tx Transmission) {
	if tx.Multicast {
		if tx.Command != mle.CmdParentRequest {
			return
		}
		mask, _ := mle.ReadUint8(tx.Payload, mle.TLVScanMask)
		for _, p := range n.parents {
			if p.IgnoreParentRequest {
				continue
			}
			if mle.IsRouterAddress(p.ShortAddress) && mask&mle.ScanMaskRouters == 0 {
				continue
			}
			if !mle.IsRouterAddress(p.ShortAddress) && mask&mle.ScanMaskREEDs == 0 {
				continue
			}
			n.ReplyTo(p, tx)
		}
		return
	}

	ext, ok := mle.ExtFromLinkLocal(tx.Destination)
	if !ok {
		return
	}
	for _, p := range n.parents {
		if p.Ext != ext {
			continue
		}
		switch tx.Command {
		case mle.CmdChildIDRequest:
			if p.IgnoreChildID {
				continue
			}
		case mle.CmdChildUpdateRequest:
			if p.IgnoreChildUpdate {
				continue
			}
		case mle.CmdDataRequest:
			if p.IgnoreDataRequest {
				continue
			}
		}
		n.ReplyTo(p, tx)
	}
}

// ReplyTo queues p's answer to tx regardless of p's Ignore flags and scan
// mask. It returns the queued message, or nil if tx has no answer.
func (n *Network) ReplyTo(p *Parent, tx Transmission) *mle.Message {
	switch tx.Command {
	case mle.CmdParentRequest:
		return n.reply(p, mle.CmdParentResponse, p.parentResponse(tx.Payload))
	case mle.CmdChildIDRequest:
		return n.reply(p, mle.CmdChildIDResponse, p.childIDResponse(tx.Payload))
	case mle.CmdChildUpdateRequest:
		return n.reply(p, mle.CmdChildUpdateResponse, p.childUpdateResponse(tx.Payload))
	case mle.CmdDataRequest:
		return n.reply(p, mle.CmdDataResponse, p.dataResponse())
	}
	return nil
}

// Advertise queues an advertisement from p.
func (n *Network) Advertise(p *Parent) *mle.Message {
	return n.reply(p, mle.CmdAdvertisement, p.Advertisement())
}

func (n *Network) reply(p *Parent, cmd mle.Command, payload []byte) *mle.Message {
	msg := &mle.Message{
		Interface: n.iface,
		Command:   cmd,
		Source:    mle.LinkLocalFromExt(p.Ext),
		Payload:   payload,
		DBM:       p.DBM,
		Security: mle.SecurityHeader{
			KeyIDMode:    mle.KeyIDModeSource4Index,
			KeyIndex:     uint8(p.KeySequence&0x7f) + 1,
			KeySequence:  p.KeySequence,
			FrameCounter: p.FrameCounter,
		},
	}
	n.queue = append(n.queue, msg)
	return msg
}

func (p *Parent) parentResponse(req []byte) []byte {
	fc := p.nextFrameCounter()
	out := mle.AppendUint16(nil, mle.TLVSourceAddress, p.ShortAddress)
	out = mle.AppendLeaderData(out, p.Leader)
	out = mle.AppendUint32(out, mle.TLVLinkFrameCounter, fc)
	out = mle.AppendUint32(out, mle.TLVMLEFrameCounter, fc)
	if chal, ok := mle.FindTLV(req, mle.TLVChallenge); ok {
		out = mle.AppendTLV(out, mle.TLVResponse, chal)
	}
	out = mle.AppendTLV(out, mle.TLVChallenge, p.challenge())
	out = mle.AppendUint8(out, mle.TLVLinkMargin, p.LinkMargin)
	out = mle.AppendConnectivity(out, p.Connectivity)
	return mle.AppendUint16(out, mle.TLVVersion, p.Version)
}

func (p *Parent) childIDResponse(req []byte) []byte {
	fc := p.nextFrameCounter()
	out := mle.AppendUint16(nil, mle.TLVSourceAddress, p.ShortAddress)
	out = mle.AppendUint16(out, mle.TLVAddress16, p.childAddress())
	out = mle.AppendLeaderData(out, p.Leader)
	out = mle.AppendUint32(out, mle.TLVLinkFrameCounter, fc)
	out = mle.AppendUint32(out, mle.TLVMLEFrameCounter, fc)
	if p.NetworkData != nil {
		out = mle.AppendTLV(out, mle.TLVNetworkData, p.NetworkData)
	}
	if types, ok := mle.ReadRequest(req); ok && mle.IsRouterAddress(p.ShortAddress) {
		for _, t := range types {
			if t == mle.TLVRoute64 {
				out = p.appendRoute64(out)
			}
		}
	}
	return out
}

func (p *Parent) childUpdateResponse(req []byte) []byte {
	if p.RejectChildUpdate {
		out := mle.AppendUint8(nil, mle.TLVStatus, mle.StatusError)
		if chal, ok := mle.FindTLV(req, mle.TLVChallenge); ok {
			out = mle.AppendTLV(out, mle.TLVResponse, chal)
		}
		return out
	}
	fc := p.nextFrameCounter()
	out := mle.AppendUint16(nil, mle.TLVSourceAddress, p.ShortAddress)
	if mode, ok := mle.ReadUint8(req, mle.TLVMode); ok {
		out = mle.AppendUint8(out, mle.TLVMode, mode)
	}
	out = mle.AppendUint16(out, mle.TLVAddress16, p.childAddress())
	out = mle.AppendLeaderData(out, p.Leader)
	out = mle.AppendUint32(out, mle.TLVLinkFrameCounter, fc)
	out = mle.AppendUint32(out, mle.TLVMLEFrameCounter, fc)
	if chal, ok := mle.FindTLV(req, mle.TLVChallenge); ok {
		out = mle.AppendTLV(out, mle.TLVResponse, chal)
	}
	if t, ok := mle.ReadUint32(req, mle.TLVTimeout); ok {
		out = mle.AppendUint32(out, mle.TLVTimeout, t)
	}
	if reg, ok := mle.FindTLV(req, mle.TLVAddressRegistration); ok {
		out = mle.AppendTLV(out, mle.TLVAddressRegistration, reg)
	}
	return out
}

func (p *Parent) dataResponse() []byte {
	out := mle.AppendUint16(nil, mle.TLVSourceAddress, p.ShortAddress)
	out = mle.AppendLeaderData(out, p.Leader)
	return mle.AppendTLV(out, mle.TLVNetworkData, p.NetworkData)
}

// Advertisement returns the payload of an advertisement from p. Routers
// include a Route64 TLV listing themselves.
func (p *Parent) Advertisement() []byte {
	out := mle.AppendUint16(nil, mle.TLVSourceAddress, p.ShortAddress)
	out = mle.AppendLeaderData(out, p.Leader)
	if mle.IsRouterAddress(p.ShortAddress) {
		out = p.appendRoute64(out)
	}
	return out
}

func (p *Parent) appendRoute64(out []byte) []byte {
	entries := append([]mle.RouteEntry{
		{RouterID: mle.RouterID(p.ShortAddress), QualityOut: 3, QualityIn: 3, RouteCost: 1},
	}, p.Routes...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].RouterID < entries[j].RouterID })
	return mle.AppendRoute64(out, mle.Route64{IDSequence: p.Connectivity.IDSequence, Entries: entries})
}
