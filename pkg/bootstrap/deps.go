package bootstrap

import (
	"fmt"

	"github.com/mash-protocol/mle-go/pkg/childstore"
	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/neighbor"
	"github.com/mash-protocol/mle-go/pkg/netdata"
)

// NeighborTable is the MAC neighbor table.
type NeighborTable interface {
	Lookup(ext mle.ExtAddress) (*neighbor.Entry, bool)
	LookupOrCreate(ext mle.ExtAddress) (*neighbor.Entry, error)
	Remove(ext mle.ExtAddress) bool
	Refresh(ext mle.ExtAddress)
}

// DeviceTable programs MAC device descriptors.
type DeviceTable interface {
	Program(d neighbor.Device)
	SetFrameCounter(ext mle.ExtAddress, fc uint32) bool
}

// Routing is the IPv6 routing layer.
type Routing interface {
	SetDefaultRoute(next mle.ExtAddress, short uint16)
	RemoveDefaultRoute()
	UpdateLinkMargin(ext mle.ExtAddress, margin uint8)
	ApplyRoute64(sender uint16, r *mle.Route64, linkMargin uint8)
	HasRouteToLeader(leaderRouterID uint8) bool
	SetRouterID(id uint8, ok bool)
	Purge()
}

// NetworkData stores network data and operational datasets.
type NetworkData interface {
	Save(leader mle.LeaderData, data []byte, stableOnly bool) error
	Purge()
	ProcessActive(ts mle.Timestamp, raw []byte) bool
	ProcessPending(ts mle.Timestamp, raw []byte) bool
	ActiveTimestamp() (mle.Timestamp, bool)
	PendingTimestamp() (mle.Timestamp, bool)
	Active() (netdata.Dataset, bool)
	NotifyChanged()
}

// Blacklist holds down parents after failed exchanges.
type Blacklist interface {
	Reject(addr mle.ExtAddress) bool
	Update(addr mle.ExtAddress, success bool)
}

// KeyManager supplies outbound security parameters and follows key
// sequence changes heard from the network.
type KeyManager interface {
	MLEParams() mle.SecurityParams
	Synchronize(seq uint32) bool
	Sequence() uint32
}

// Supervisor is the bootstrap state machine above the engine. Calls are
// made from inside message and timeout handlers; implementations must not
// call back into the engine synchronously.
type Supervisor interface {
	// ConnectionError abandons the current attempt. link is the peer
	// involved, if any.
	ConnectionError(id mle.InterfaceID, kind ConnectionError, link *mle.ExtAddress)

	// DeviceSynchFail reports that synchronization with the remembered
	// parent failed.
	DeviceSynchFail(id mle.InterfaceID)

	// AttachedReady reports that the interface is attached.
	AttachedReady(id mle.InterfaceID)

	// ResetBootstrap requests a full bootstrap restart after the parent
	// stopped answering keep-alives.
	ResetBootstrap(id mle.InterfaceID)

	// TemporaryAttach requests an attach attempt on the channel and PAN of
	// a newer active dataset heard in an announce.
	TemporaryAttach(id mle.InterfaceID, ch mle.Channel, panID uint16, ts mle.Timestamp)
}

// Poller controls the data poll rate of a sleepy device.
type Poller interface {
	SetFastPoll(id mle.InterfaceID, enable bool)
}

// RouterHandler handles MLE messages of router-mode nodes.
type RouterHandler interface {
	HandleRouterMessage(id mle.InterfaceID, msg *mle.Message)
}

// Deps are the collaborators of one interface. Children, Devices, Poller
// and Router are optional.
type Deps struct {
	Messages    mle.MessageService
	Neighbors   NeighborTable
	Routing     Routing
	NetworkData NetworkData
	Blacklist   Blacklist
	Keys        KeyManager
	Supervisor  Supervisor

	Children *childstore.Store
	Devices  DeviceTable
	Poller   Poller
	Router   RouterHandler
}

func (d *Deps) validate() error {
	switch {
	case d.Messages == nil:
		return fmt.Errorf("%w: message service", ErrMissingDependency)
	case d.Neighbors == nil:
		return fmt.Errorf("%w: neighbor table", ErrMissingDependency)
	case d.Routing == nil:
		return fmt.Errorf("%w: routing", ErrMissingDependency)
	case d.NetworkData == nil:
		return fmt.Errorf("%w: network data", ErrMissingDependency)
	case d.Blacklist == nil:
		return fmt.Errorf("%w: blacklist", ErrMissingDependency)
	case d.Keys == nil:
		return fmt.Errorf("%w: key manager", ErrMissingDependency)
	case d.Supervisor == nil:
		return fmt.Errorf("%w: supervisor", ErrMissingDependency)
	}
	return nil
}
