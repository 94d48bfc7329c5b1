package scenario

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/mash-protocol/mle-go/pkg/blacklist"
	"github.com/mash-protocol/mle-go/pkg/bootstrap"
	"github.com/mash-protocol/mle-go/pkg/childstore"
	"github.com/mash-protocol/mle-go/pkg/log"
	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/neighbor"
	"github.com/mash-protocol/mle-go/pkg/netdata"
	"github.com/mash-protocol/mle-go/pkg/routing"
	"github.com/mash-protocol/mle-go/pkg/security"
	"github.com/mash-protocol/mle-go/pkg/simnet"
	"github.com/mash-protocol/mle-go/pkg/supervisor"
)

// Interface is the interface id of the simulated node.
const Interface mle.InterfaceID = 1

// DefaultDuration is the simulated time of a scenario without a duration.
const DefaultDuration = 10 * time.Second

// tick is the step between message exchanges on the simulated network.
const tick = 100 * time.Millisecond

var defaultNetworkKey = security.NetworkKey{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}

// ErrExpectation is wrapped by every failed expectation.
var ErrExpectation = errors.New("expectation failed")

// Options configures a Session.
type Options struct {
	// Start is the virtual start time. Defaults to the current time.
	Start time.Time

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Nil disables capture.
	ProtocolLogger log.Logger
}

// Result is the node's view after a run.
type Result struct {
	State        bootstrap.State
	Role         bootstrap.Role
	ShortAddress uint16
	Parent       *bootstrap.ParentInfo
	Leader       *mle.LeaderData
	Supervisor   supervisor.Status

	// Transmissions counts every message sent by the node.
	Transmissions int
	Elapsed       time.Duration
}

// Session is a node attached to a simulated network of scripted parents.
// It is not safe for concurrent use.
type Session struct {
	mode  bootstrap.AttachMode
	start time.Time

	svc      *simnet.Service
	net      *simnet.Network
	engine   *bootstrap.Engine
	sup      *supervisor.Supervisor
	children *childstore.Store
	data     *netdata.Store
}

// NewSession builds the node and its network. Parents with a join delay
// appear once the virtual clock passes it.
func NewSession(sc *Scenario, opts Options) (*Session, error) {
	cfg, err := sc.Node.config()
	if err != nil {
		return nil, err
	}
	cfg.Logger = opts.Logger
	cfg.ProtocolLogger = opts.ProtocolLogger
	mode, err := ParseAttachMode(sc.Node.AttachMode)
	if err != nil {
		return nil, err
	}
	key := defaultNetworkKey
	if sc.Node.NetworkKey != "" {
		if key, err = security.ParseNetworkKey(sc.Node.NetworkKey); err != nil {
			return nil, err
		}
	}

	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}
	svc := simnet.NewService(start)
	s := &Session{
		mode:     mode,
		start:    start,
		svc:      svc,
		net:      simnet.NewNetwork(svc, Interface),
		engine:   bootstrap.NewEngine(),
		children: childstore.New(10),
		data:     netdata.NewStore(),
	}

	supCfg := supervisor.DefaultConfig()
	supCfg.Backoff.Seed = 1
	supCfg.Schedule = svc.AfterFunc
	supCfg.Logger = opts.Logger
	if s.sup, err = supervisor.New(supCfg); err != nil {
		return nil, err
	}
	s.sup.Bind(s.engine)

	neighbors := neighbor.NewTable(16)
	neighbors.SetClock(svc.Now)
	deps := bootstrap.Deps{
		Messages:    svc,
		Neighbors:   neighbors,
		Routing:     routing.NewTable(),
		NetworkData: s.data,
		Blacklist:   blacklist.New(blacklist.Config{Now: svc.Now}),
		Keys:        security.NewManager(key, 0),
		Supervisor:  s.sup,
		Children:    s.children,
		Devices:     neighbor.NewDeviceTable(),
	}
	if err := s.engine.AddInterface(Interface, cfg, deps); err != nil {
		return nil, err
	}
	svc.SetReceiver(s.engine)

	for _, spec := range sc.Parents {
		p, err := spec.parent()
		if err != nil {
			return nil, err
		}
		if spec.JoinAfter <= 0 {
			s.net.AddParent(p)
			continue
		}
		svc.AfterFunc(spec.JoinAfter, func() { s.net.AddParent(p) })
	}
	return s, nil
}

// Start begins an attach in the scenario's attach mode.
func (s *Session) Start() error {
	return s.engine.StartAttach(Interface, s.mode)
}

// Scan begins an attach in mode.
func (s *Session) Scan(mode bootstrap.AttachMode) error {
	return s.engine.StartAttach(Interface, mode)
}

// Advance runs the network for d of virtual time.
func (s *Session) Advance(d time.Duration) {
	s.net.RunFor(d, tick)
}

// TriggerChildUpdate sends a keep-alive to the current parent.
func (s *Session) TriggerChildUpdate() error {
	p, ok := s.engine.Parent(Interface)
	if !ok {
		return bootstrap.ErrNoParent
	}
	return s.engine.TriggerChildUpdate(Interface, p.Ext)
}

// Reset forces the node back to discovery.
func (s *Session) Reset() error {
	return s.engine.ResetInterface(Interface)
}

// Children returns the stored child records.
func (s *Session) Children() []childstore.Record {
	return s.children.Records()
}

// NetworkData returns the network data learned from the parent.
func (s *Session) NetworkData() ([]byte, mle.LeaderData, bool) {
	return s.data.NetworkData()
}

// Parents returns the scripted parents, joined or not yet joined.
func (s *Session) Parents() []*simnet.Parent {
	return s.net.Parents()
}

// Engine returns the node's bootstrap engine.
func (s *Session) Engine() *bootstrap.Engine {
	return s.engine
}

// Result returns the node's current view.
func (s *Session) Result() Result {
	r := Result{
		State:         s.engine.State(Interface),
		Role:          s.engine.Role(Interface),
		ShortAddress:  s.engine.ShortAddress(Interface),
		Supervisor:    s.sup.Status(Interface),
		Transmissions: len(s.svc.Sent()),
		Elapsed:       s.svc.Now().Sub(s.start),
	}
	if p, ok := s.engine.Parent(Interface); ok {
		r.Parent = &p
	}
	if l, ok := s.engine.Leader(Interface); ok {
		r.Leader = &l
	}
	return r
}

// Run attaches the scenario's node and returns the result after the
// scenario's duration.
func Run(sc *Scenario, opts Options) (Result, error) {
	s, err := NewSession(sc, opts)
	if err != nil {
		return Result{}, err
	}
	if err := s.Start(); err != nil {
		return Result{}, err
	}
	d := sc.Duration
	if d <= 0 {
		d = DefaultDuration
	}
	s.Advance(d)
	return s.Result(), nil
}

// Check compares r with the expectations. All mismatches are joined into
// the returned error.
func (e *Expect) Check(r Result) error {
	if e == nil {
		return nil
	}
	var errs []error
	fail := func(what string, want, got any) {
		errs = append(errs, fmt.Errorf("%w: %s: want %v, got %v", ErrExpectation, what, want, got))
	}
	if e.State != "" && !strings.EqualFold(e.State, r.State.String()) {
		fail("state", e.State, r.State)
	}
	if e.Role != "" && !strings.EqualFold(e.Role, r.Role.String()) {
		fail("role", e.Role, r.Role)
	}
	if e.Parent != nil {
		switch {
		case r.Parent == nil:
			fail("parent", *e.Parent, "none")
		case r.Parent.Ext != *e.Parent:
			fail("parent", *e.Parent, r.Parent.Ext)
		}
	}
	if e.ShortAddress != nil && *e.ShortAddress != r.ShortAddress {
		fail("short address", fmt.Sprintf("%#04x", *e.ShortAddress), fmt.Sprintf("%#04x", r.ShortAddress))
	}
	if e.PartitionID != nil {
		switch {
		case r.Leader == nil:
			fail("partition", *e.PartitionID, "none")
		case r.Leader.PartitionID != *e.PartitionID:
			fail("partition", *e.PartitionID, r.Leader.PartitionID)
		}
	}
	if e.Restarts != nil && *e.Restarts != r.Supervisor.Restarts {
		fail("restarts", *e.Restarts, r.Supervisor.Restarts)
	}
	return errors.Join(errs...)
}

func (n Node) config() (bootstrap.Config, error) {
	cfg, err := parseDevice(n.Device)
	if err != nil {
		return cfg, err
	}
	cfg.ExtAddress = n.ExtAddress
	cfg.CCM = n.CCM
	if n.ChildTimeout > 0 {
		cfg.ChildTimeout = n.ChildTimeout
	}
	for _, a := range n.Addresses {
		addr, err := netip.ParseAddr(a)
		if err != nil {
			return cfg, err
		}
		cfg.Addresses = append(cfg.Addresses, addr)
	}
	return cfg, cfg.Validate()
}

func (p ParentSpec) parent() (*simnet.Parent, error) {
	data, err := hex.DecodeString(p.NetworkData)
	if err != nil {
		return nil, err
	}
	leaderID := p.LeaderRouterID
	if leaderID == 0 {
		leaderID = mle.RouterID(p.ShortAddress)
	}
	version := p.Version
	if version == 0 {
		version = mle.Version1_3
	}
	return &simnet.Parent{
		Ext:          p.ExtAddress,
		ShortAddress: p.ShortAddress,
		Leader: mle.LeaderData{
			PartitionID:       p.PartitionID,
			Weighting:         p.Weighting,
			DataVersion:       p.DataVersion,
			StableDataVersion: p.StableDataVersion,
			LeaderRouterID:    leaderID,
		},
		Connectivity: mle.Connectivity{
			ParentPriority: p.ParentPriority,
			LinkQuality3:   p.LinkQuality3,
			LinkQuality2:   p.LinkQuality2,
			LinkQuality1:   p.LinkQuality1,
			LeaderCost:     p.LeaderCost,
			IDSequence:     p.IDSequence,
			ActiveRouters:  p.ActiveRouters,
		},
		Version:             version,
		DBM:                 p.DBM,
		LinkMargin:          p.LinkMargin,
		KeySequence:         p.KeySequence,
		NetworkData:         data,
		ChildAddress:        p.ChildAddress,
		IgnoreParentRequest: p.IgnoreParentRequest,
		IgnoreChildID:       p.IgnoreChildID,
		IgnoreChildUpdate:   p.IgnoreChildUpdate,
		IgnoreDataRequest:   p.IgnoreDataRequest,
		RejectChildUpdate:   p.RejectChildUpdate,
	}, nil
}

func parseDevice(s string) (bootstrap.Config, error) {
	cfg := bootstrap.DefaultConfig()
	switch strings.ToLower(s) {
	case "", "reed":
	case "fed":
		cfg.RouterCapable = false
	case "med":
		cfg.RouterCapable = false
		cfg.Mode = mle.ModeRxOnWhenIdle
	case "sed":
		cfg.RouterCapable = false
		cfg.Mode = 0
	default:
		return cfg, fmt.Errorf("unknown device %q", s)
	}
	return cfg, nil
}

// ParseAttachMode parses an attach mode name as used in scenario files.
func ParseAttachMode(s string) (bootstrap.AttachMode, error) {
	switch strings.ToLower(s) {
	case "", "discover":
		return bootstrap.AttachDiscover, nil
	case "reattach":
		return bootstrap.AttachReattach, nil
	case "reattach_retry":
		return bootstrap.AttachReattachRetry, nil
	case "any":
		return bootstrap.AttachAny, nil
	default:
		return bootstrap.AttachDiscover, fmt.Errorf("unknown attach mode %q", s)
	}
}

func knownState(name string) bool {
	for st := bootstrap.StateIdle; st <= bootstrap.StateAttachAny; st++ {
		if strings.EqualFold(name, st.String()) {
			return true
		}
	}
	return false
}
