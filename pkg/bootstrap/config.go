package bootstrap

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"time"

	"github.com/mash-protocol/mle-go/pkg/log"
	"github.com/mash-protocol/mle-go/pkg/mle"
)

// LinkPolicy gates creation of neighbor links from unsolicited messages.
type LinkPolicy uint8

const (
	// LinkPolicyAny creates links to any neighbor.
	LinkPolicyAny LinkPolicy = iota
	// LinkPolicyRoutersOnly creates links to routers only.
	LinkPolicyRoutersOnly
	// LinkPolicyNone never creates links from unsolicited messages.
	LinkPolicyNone
)

// String returns the policy name.
func (p LinkPolicy) String() string {
	switch p {
	case LinkPolicyAny:
		return "ANY"
	case LinkPolicyRoutersOnly:
		return "ROUTERS_ONLY"
	case LinkPolicyNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

func (p LinkPolicy) allows(short uint16) bool {
	switch p {
	case LinkPolicyAny:
		return true
	case LinkPolicyRoutersOnly:
		return mle.IsRouterAddress(short)
	default:
		return false
	}
}

// Timeouts holds the retransmission parameters of each exchange.
type Timeouts struct {
	ParentRequest mle.TimeoutParams
	ChildID       mle.TimeoutParams
	ChildUpdate   mle.TimeoutParams
	Synch         mle.TimeoutParams
	DataRequest   mle.TimeoutParams
}

// DefaultTimeouts returns the retransmission parameters used by default.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ParentRequest: mle.TimeoutParams{RetransMax: 2, TimeoutInit: 1 * time.Second, TimeoutMax: 2 * time.Second},
		ChildID:       mle.TimeoutParams{RetransMax: 3, TimeoutInit: 1 * time.Second, TimeoutMax: 3 * time.Second},
		ChildUpdate:   mle.TimeoutParams{RetransMax: 3, TimeoutInit: 1 * time.Second, TimeoutMax: 3 * time.Second},
		Synch:         mle.TimeoutParams{RetransMax: 2, TimeoutInit: 1 * time.Second, TimeoutMax: 3 * time.Second},
		DataRequest:   mle.TimeoutParams{RetransMax: 2, TimeoutInit: 1 * time.Second, TimeoutMax: 2 * time.Second},
	}
}

// Config configures one interface.
type Config struct {
	// ExtAddress is the interface's own extended address.
	ExtAddress mle.ExtAddress

	// Mode is the device mode advertised in Mode TLVs.
	Mode mle.Mode

	// RouterCapable marks a full device that may become a router (REED).
	RouterCapable bool

	// ThreadVersion is the protocol version advertised in Version TLVs.
	ThreadVersion uint16

	// CCM enables commercial commissioning mode rules.
	CCM bool

	// PartitionWeighting is the weighting of partitions this node would
	// form. CCM routers refuse parents of lower weighting.
	PartitionWeighting uint8

	// ChildTimeout is the timeout requested from the parent.
	ChildTimeout time.Duration

	// LinkPolicy gates link creation from advertisements and link accepts.
	LinkPolicy LinkPolicy

	// Addresses are registered with the parent by minimal devices.
	Addresses []netip.Addr

	Timeouts Timeouts

	// Rand is the source of challenges. Defaults to crypto/rand.
	Rand io.Reader

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Nil disables capture.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the configuration of a router-capable full device.
func DefaultConfig() Config {
	return Config{
		Mode:               mle.ModeRxOnWhenIdle | mle.ModeFullDevice | mle.ModeFullNetworkData,
		RouterCapable:      true,
		ThreadVersion:      mle.Version1_3,
		PartitionWeighting: 64,
		ChildTimeout:       240 * time.Second,
		LinkPolicy:         LinkPolicyAny,
		Timeouts:           DefaultTimeouts(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ExtAddress.IsZero() {
		return fmt.Errorf("%w: missing extended address", ErrInvalidConfig)
	}
	if c.Mode.FullDevice() && !c.Mode.RxOnWhenIdle() {
		return fmt.Errorf("%w: full device must keep its receiver on", ErrInvalidConfig)
	}
	if c.RouterCapable && !c.Mode.FullDevice() {
		return fmt.Errorf("%w: router capable device must be a full device", ErrInvalidConfig)
	}
	if c.ThreadVersion < mle.Version1_1 {
		return fmt.Errorf("%w: thread version %d", ErrInvalidConfig, c.ThreadVersion)
	}
	if c.ChildTimeout < time.Second {
		return fmt.Errorf("%w: child timeout %v", ErrInvalidConfig, c.ChildTimeout)
	}
	if c.LinkPolicy > LinkPolicyNone {
		return fmt.Errorf("%w: link policy %d", ErrInvalidConfig, c.LinkPolicy)
	}
	for name, tp := range map[string]mle.TimeoutParams{
		"parent request": c.Timeouts.ParentRequest,
		"child id":       c.Timeouts.ChildID,
		"child update":   c.Timeouts.ChildUpdate,
		"synch":          c.Timeouts.Synch,
		"data request":   c.Timeouts.DataRequest,
	} {
		if tp.TimeoutInit <= 0 || tp.TimeoutMax < tp.TimeoutInit {
			return fmt.Errorf("%w: %s timeouts", ErrInvalidConfig, name)
		}
	}
	return nil
}

func (c *Config) rand() io.Reader {
	if c.Rand != nil {
		return c.Rand
	}
	return rand.Reader
}

func (c *Config) childTimeoutSeconds() uint32 {
	return uint32(c.ChildTimeout / time.Second)
}
