package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/mle-go/pkg/blacklist"
	"github.com/mash-protocol/mle-go/pkg/childstore"
	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/neighbor"
	"github.com/mash-protocol/mle-go/pkg/netdata"
	"github.com/mash-protocol/mle-go/pkg/routing"
	"github.com/mash-protocol/mle-go/pkg/security"
	"github.com/mash-protocol/mle-go/pkg/simnet"
)

const testIface mle.InterfaceID = 1

var (
	testStart = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	nodeExt   = mle.ExtAddress{0x02, 0, 0, 0, 0, 0, 0, 0x01}
)

// ============================================================================
// Stubs
// ============================================================================

type stubSupervisor struct{ mock.Mock }

func (s *stubSupervisor) ConnectionError(id mle.InterfaceID, kind ConnectionError, link *mle.ExtAddress) {
	s.Called(id, kind, link)
}
func (s *stubSupervisor) DeviceSynchFail(id mle.InterfaceID) { s.Called(id) }
func (s *stubSupervisor) AttachedReady(id mle.InterfaceID)   { s.Called(id) }
func (s *stubSupervisor) ResetBootstrap(id mle.InterfaceID)  { s.Called(id) }
func (s *stubSupervisor) TemporaryAttach(id mle.InterfaceID, ch mle.Channel, panID uint16, ts mle.Timestamp) {
	s.Called(id, ch, panID, ts)
}

func newStubSupervisor() *stubSupervisor {
	s := &stubSupervisor{}
	s.On("ConnectionError", mock.Anything, mock.Anything, mock.Anything).Maybe()
	s.On("DeviceSynchFail", mock.Anything).Maybe()
	s.On("AttachedReady", mock.Anything).Maybe()
	s.On("ResetBootstrap", mock.Anything).Maybe()
	s.On("TemporaryAttach", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	return s
}

// connectionErrors returns the kinds reported through ConnectionError.
func (s *stubSupervisor) connectionErrors() []ConnectionError {
	var kinds []ConnectionError
	for _, c := range s.Calls {
		if c.Method == "ConnectionError" {
			kinds = append(kinds, c.Arguments.Get(1).(ConnectionError))
		}
	}
	return kinds
}

func (s *stubSupervisor) count(method string) int {
	n := 0
	for _, c := range s.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

type stubPoller struct{ mock.Mock }

func (s *stubPoller) SetFastPoll(id mle.InterfaceID, enable bool) { s.Called(id, enable) }

type stubRouter struct{ mock.Mock }

func (s *stubRouter) HandleRouterMessage(id mle.InterfaceID, msg *mle.Message) { s.Called(id, msg) }

// seqReader yields 1, 2, 3, ... so every challenge is distinct.
type seqReader struct{ n byte }

func (r *seqReader) Read(p []byte) (int, error) {
	for i := range p {
		r.n++
		p[i] = r.n
	}
	return len(p), nil
}

// ============================================================================
// Harness
// ============================================================================

type harness struct {
	t *testing.T

	svc *simnet.Service
	net *simnet.Network

	engine    *Engine
	sup       *stubSupervisor
	poller    *stubPoller
	router    *stubRouter
	neighbors *neighbor.Table
	devices   *neighbor.DeviceTable
	routes    *routing.Table
	data      *netdata.Store
	deny      *blacklist.List
	keys      *security.Manager
	children  *childstore.Store
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	svc := simnet.NewService(testStart)
	h := &harness{
		t:         t,
		svc:       svc,
		net:       simnet.NewNetwork(svc, testIface),
		engine:    NewEngine(),
		sup:       newStubSupervisor(),
		poller:    &stubPoller{},
		router:    &stubRouter{},
		neighbors: neighbor.NewTable(8),
		devices:   neighbor.NewDeviceTable(),
		routes:    routing.NewTable(),
		data:      netdata.NewStore(),
		deny:      blacklist.New(blacklist.Config{Now: svc.Now}),
		keys:      security.NewManager(security.NetworkKey{1, 2, 3}, 0),
		children:  childstore.New(4),
	}
	h.poller.On("SetFastPoll", mock.Anything, mock.Anything).Maybe()
	h.router.On("HandleRouterMessage", mock.Anything, mock.Anything).Maybe()
	h.neighbors.SetClock(svc.Now)

	cfg := DefaultConfig()
	cfg.ExtAddress = nodeExt
	cfg.Rand = &seqReader{}
	for _, opt := range opts {
		opt(&cfg)
	}
	require.NoError(t, h.engine.AddInterface(testIface, cfg, h.deps()))
	svc.SetReceiver(h.engine)
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Messages:    h.svc,
		Neighbors:   h.neighbors,
		Routing:     h.routes,
		NetworkData: h.data,
		Blacklist:   h.deny,
		Keys:        h.keys,
		Supervisor:  h.sup,
		Children:    h.children,
		Devices:     h.devices,
		Poller:      h.poller,
		Router:      h.router,
	}
}

func (h *harness) state() State {
	return h.engine.State(testIface)
}

// attach runs a full discovery against p and requires the node attached.
func (h *harness) attach(p *simnet.Parent) {
	h.t.Helper()
	h.net.AddParent(p)
	require.NoError(h.t, h.engine.StartAttach(testIface, AttachDiscover))
	h.net.RunFor(2*time.Second, 100*time.Millisecond)
	require.Equal(h.t, StateConnected, h.state())
	par, ok := h.engine.Parent(testIface)
	require.True(h.t, ok)
	require.Equal(h.t, p.Ext, par.Ext)
}

// startScan sends a Parent-Request and lets n-1 scan timeouts pass without
// answers, so that the next responses are evaluated on scan n.
func (h *harness) startScan(mode AttachMode, n int) simnet.Transmission {
	h.t.Helper()
	require.NoError(h.t, h.engine.StartAttach(testIface, mode))
	h.net.RunUntilIdle()
	for i := 1; i < n; i++ {
		at, ok := h.svc.NextDeadline()
		require.True(h.t, ok)
		h.svc.Advance(at.Sub(h.svc.Now()))
		h.net.RunUntilIdle()
	}
	tx, ok := h.svc.Last(mle.CmdParentRequest)
	require.True(h.t, ok)
	return tx
}

// reply delivers p's answer to tx immediately.
func (h *harness) reply(p *simnet.Parent, tx simnet.Transmission) {
	h.t.Helper()
	require.NotNil(h.t, h.net.ReplyTo(p, tx))
	h.net.Step()
}

func testParent(n byte, partition uint32, weighting uint8) *simnet.Parent {
	return &simnet.Parent{
		Ext:          mle.ExtAddress{0x0a, 0, 0, 0, 0, 0, 0, n},
		ShortAddress: mle.RouterShortAddress(n),
		Leader: mle.LeaderData{
			PartitionID:       partition,
			Weighting:         weighting,
			DataVersion:       10,
			StableDataVersion: 20,
			LeaderRouterID:    n,
		},
		Connectivity: mle.Connectivity{
			LinkQuality3:  2,
			LeaderCost:    1,
			IDSequence:    20,
			ActiveRouters: 3,
		},
		Version:     mle.Version1_3,
		DBM:         -50,
		LinkMargin:  40,
		NetworkData: []byte{0x08, 0x02, 0xaa, 0xbb},
	}
}

// inject delivers msg from p's link-local address.
func (h *harness) inject(p *simnet.Parent, cmd mle.Command, payload []byte) {
	h.net.Inject(&mle.Message{
		Command: cmd,
		Source:  mle.LinkLocalFromExt(p.Ext),
		Payload: payload,
		DBM:     p.DBM,
		Security: mle.SecurityHeader{
			KeyIDMode:   mle.KeyIDModeSource4Index,
			KeySequence: p.KeySequence,
		},
	})
	h.net.Step()
}

// pendingLinkRequest allocates an unsent Link-Request carrying a challenge
// so that link accepts echoing it validate.
func (h *harness) pendingLinkRequest() []byte {
	h.t.Helper()
	msg, err := h.svc.Allocate(testIface, 0, true, mle.CmdLinkRequest)
	require.NoError(h.t, err)
	chal := []byte{0xc0, 1, 2, 3, 4, 5, 6, 7}
	msg.Payload = mle.AppendTLV(nil, mle.TLVChallenge, chal)
	return chal
}
