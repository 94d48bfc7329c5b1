package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/netdata"
	"github.com/mash-protocol/mle-go/pkg/serialnum"
	"github.com/mash-protocol/mle-go/pkg/simnet"
)

// ============================================================================
// Advertisements
// ============================================================================

func TestAdvertisementIgnoredWhileDetached(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	p.KeySequence = 5

	h.net.Advertise(p)
	h.net.Step()

	assert.Equal(t, uint32(0), h.keys.Sequence())
	_, ok := h.engine.Leader(testIface)
	assert.False(t, ok)
}

func TestAdvertisementIgnoredBySleepyChild(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Mode = 0
		c.RouterCapable = false
	})
	p := testParent(1, 1, 64)
	h.attach(p)
	require.Equal(t, RoleSleepyEndDevice, h.engine.Role(testIface))

	p.KeySequence = 5
	p.Leader.PartitionID = 2
	h.net.Advertise(p)
	h.net.Step()

	assert.Equal(t, uint32(0), h.keys.Sequence())
	assert.Empty(t, h.sup.connectionErrors())
	leader, _ := h.engine.Leader(testIface)
	assert.Equal(t, uint32(1), leader.PartitionID)
}

func TestAdvertisementSynchronizesKeySequence(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)

	p.KeySequence = 5
	h.net.Advertise(p)
	h.net.Step()

	assert.Equal(t, uint32(5), h.keys.Sequence())
}

func TestRouterAdvertisementWithoutRouteDropped(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)

	p.KeySequence = 5
	payload := mle.AppendUint16(nil, mle.TLVSourceAddress, p.ShortAddress)
	payload = mle.AppendLeaderData(payload, p.Leader)
	h.inject(p, mle.CmdAdvertisement, payload)

	assert.Equal(t, uint32(0), h.keys.Sequence())
}

func TestParentAdvertisementFollowsPartitionChange(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)
	p.IgnoreDataRequest = true

	p.Leader.PartitionID = 2
	h.net.Advertise(p)
	h.net.Step()

	leader, _ := h.engine.Leader(testIface)
	assert.Equal(t, uint32(2), leader.PartitionID)
	assert.Equal(t, p.Leader.DataVersion-1, leader.DataVersion)
	req, ok := h.svc.Last(mle.CmdDataRequest)
	require.True(t, ok)
	assert.Equal(t, mle.LinkLocalFromExt(p.Ext), req.Destination)
	assert.Empty(t, h.sup.connectionErrors())
}

func TestParentAdvertisementWithNewShortAddress(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)

	p.ShortAddress = mle.RouterShortAddress(9)
	h.net.Advertise(p)
	h.net.Step()

	assert.Equal(t, []ConnectionError{ErrorShortAddressChanged}, h.sup.connectionErrors())
}

func TestParentAdvertisementWithNewerDataRequestsIt(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)

	p.Leader.DataVersion++
	h.net.Advertise(p)
	h.net.RunUntilIdle()

	assert.Len(t, h.svc.SentCommand(mle.CmdDataRequest), 1)
	leader, _ := h.engine.Leader(testIface)
	assert.Equal(t, p.Leader, leader)
}

func TestREEDMergesIntoPreferredPartition(t *testing.T) {
	tests := []struct {
		name      string
		short     uint16
		partition uint32
		weighting uint8
		merge     bool
	}{
		{"higher weighting", 0x0c01, 2, 70, true},
		{"equal weighting higher id", 0x0c01, 2, 64, true},
		{"lower weighting", 0x0c01, 2, 40, false},
		{"router sender", mle.RouterShortAddress(3), 2, 70, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.attach(testParent(1, 1, 64))

			peer := testParent(3, tt.partition, tt.weighting)
			peer.ShortAddress = tt.short
			h.net.Advertise(peer)
			h.net.Step()

			if tt.merge {
				assert.Equal(t, []ConnectionError{ErrorPartitionMerge}, h.sup.connectionErrors())
			} else {
				assert.Empty(t, h.sup.connectionErrors())
			}
		})
	}
}

func TestRouterAdvertisementFromPreferredPartitionMerges(t *testing.T) {
	h := newHarness(t)
	h.attach(testParent(1, 1, 64))
	require.NoError(t, h.engine.PromoteToRouter(testIface, 5))

	peer := testParent(3, 2, 80)
	h.net.Advertise(peer)
	h.net.Step()

	assert.Equal(t, []ConnectionError{ErrorPartitionMerge}, h.sup.connectionErrors())
}

func TestRouterAdvertisementFromTwoWayNeighborRequestsData(t *testing.T) {
	h := newHarness(t)
	h.attach(testParent(1, 1, 64))
	require.NoError(t, h.engine.PromoteToRouter(testIface, 5))

	peer := testParent(3, 1, 64)
	h.net.AddParent(peer)
	h.net.Advertise(peer)
	h.net.Step()
	entry, ok := h.neighbors.Lookup(peer.Ext)
	require.True(t, ok, "advertisement creates the router link")
	assert.Empty(t, h.svc.SentCommand(mle.CmdDataRequest))

	entry.TwoWay = true
	peer.Leader.DataVersion++
	h.net.Advertise(peer)
	h.net.Step()

	req, ok := h.svc.Last(mle.CmdDataRequest)
	require.True(t, ok)
	assert.Equal(t, mle.LinkLocalFromExt(peer.Ext), req.Destination)
	route, ok := h.routes.Route(3)
	require.True(t, ok)
	assert.Equal(t, uint8(3), route.RouterID)
}

func TestLeaderDataNeverMovesBackwards(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)

	prev, _ := h.engine.Leader(testIface)
	for _, v := range []uint8{11, 9, 12, 12, 140, 13, 200, 14} {
		p.Leader.DataVersion = v
		p.NetworkData = []byte{0x08, 0x01, v}
		h.net.Advertise(p)
		h.net.RunUntilIdle()

		cur, _ := h.engine.Leader(testIface)
		assert.False(t, serialnum.Greater8(prev.DataVersion, cur.DataVersion),
			"data version went from %d to %d", prev.DataVersion, cur.DataVersion)
		prev = cur
	}
	assert.Equal(t, uint8(14), prev.DataVersion)
}

// ============================================================================
// Links
// ============================================================================

func linkAccept(p *simnet.Parent, chal []byte) []byte {
	out := mle.AppendTLV(nil, mle.TLVResponse, chal)
	out = mle.AppendUint16(out, mle.TLVSourceAddress, p.ShortAddress)
	out = mle.AppendUint16(out, mle.TLVVersion, p.Version)
	return mle.AppendUint32(out, mle.TLVLinkFrameCounter, 42)
}

func TestLinkAcceptCreatesNeighbor(t *testing.T) {
	h := newHarness(t)
	p := testParent(3, 1, 64)
	h.deny.Update(p.Ext, false)

	h.inject(p, mle.CmdLinkAccept, linkAccept(p, h.pendingLinkRequest()))

	entry, ok := h.neighbors.Lookup(p.Ext)
	require.True(t, ok)
	assert.Equal(t, p.ShortAddress, entry.ShortAddress)
	assert.Equal(t, uint32(42), entry.LinkFrameCounter)
	assert.Equal(t, uint32(42), entry.MLEFrameCounter)
	assert.False(t, entry.TwoWay)
	assert.False(t, h.deny.Reject(p.Ext))
	_, ok = h.devices.Get(p.Ext)
	assert.True(t, ok)
}

func TestLinkAcceptBetweenRoutersIsTwoWay(t *testing.T) {
	h := newHarness(t)
	h.attach(testParent(1, 1, 64))
	require.NoError(t, h.engine.PromoteToRouter(testIface, 5))

	p := testParent(3, 1, 64)
	h.inject(p, mle.CmdLinkAcceptAndRequest, linkAccept(p, h.pendingLinkRequest()))

	entry, ok := h.neighbors.Lookup(p.Ext)
	require.True(t, ok)
	assert.True(t, entry.TwoWay)
	h.router.AssertCalled(t, "HandleRouterMessage", testIface, mock.Anything)
}

func TestLinkAcceptWithoutRequestDropped(t *testing.T) {
	h := newHarness(t)
	p := testParent(3, 1, 64)

	h.inject(p, mle.CmdLinkAccept, linkAccept(p, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	_, ok := h.neighbors.Lookup(p.Ext)
	assert.False(t, ok)
}

func TestLinkAcceptPolicy(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.LinkPolicy = LinkPolicyRoutersOnly })
	chal := h.pendingLinkRequest()

	reed := testParent(3, 1, 64)
	reed.ShortAddress = 0x0c01
	h.inject(reed, mle.CmdLinkAccept, linkAccept(reed, chal))
	_, ok := h.neighbors.Lookup(reed.Ext)
	assert.False(t, ok)

	router := testParent(4, 1, 64)
	h.inject(router, mle.CmdLinkAccept, linkAccept(router, chal))
	_, ok = h.neighbors.Lookup(router.Ext)
	assert.True(t, ok)
}

func TestLinkAcceptWithFullTableRejects(t *testing.T) {
	h := newHarness(t)
	for i := byte(0); i < 8; i++ {
		_, err := h.neighbors.LookupOrCreate(mle.ExtAddress{0xee, i})
		require.NoError(t, err)
	}
	p := testParent(3, 1, 64)
	h.inject(p, mle.CmdLinkAccept, linkAccept(p, h.pendingLinkRequest()))

	tx, ok := h.svc.Last(mle.CmdLinkReject)
	require.True(t, ok)
	assert.Equal(t, mle.LinkLocalFromExt(p.Ext), tx.Destination)
	st, _ := mle.ReadUint8(tx.Payload, mle.TLVStatus)
	assert.Equal(t, mle.StatusError, st)
}

func TestLinkRejectRemovesNeighbor(t *testing.T) {
	h := newHarness(t)
	p := testParent(3, 1, 64)
	_, err := h.neighbors.LookupOrCreate(p.Ext)
	require.NoError(t, err)

	h.inject(p, mle.CmdLinkReject, mle.AppendUint8(nil, mle.TLVStatus, mle.StatusError))

	_, ok := h.neighbors.Lookup(p.Ext)
	assert.False(t, ok)
}

// ============================================================================
// Announce
// ============================================================================

func announce(ts uint64, ch uint16, pan uint16) []byte {
	out := mle.AppendChannel(nil, mle.Channel{Channel: ch})
	out = mle.AppendTimestamp(out, mle.TLVActiveTimestamp, mle.Timestamp{Seconds: ts})
	return mle.AppendUint16(out, mle.TLVPANID, pan)
}

func TestAnnounce(t *testing.T) {
	local := mle.Timestamp{Seconds: 100}

	t.Run("same dataset", func(t *testing.T) {
		h := newHarness(t)
		h.data.ProcessActive(local, netdata.EncodeDataset(mle.Channel{Channel: 15}, 0xface))
		h.inject(testParent(3, 1, 64), mle.CmdAnnounce, announce(100, 20, 0xbeef))

		assert.Empty(t, h.svc.SentCommand(mle.CmdAnnounce))
		assert.Zero(t, h.sup.count("TemporaryAttach"))
	})

	t.Run("older dataset", func(t *testing.T) {
		h := newHarness(t)
		h.data.ProcessActive(local, netdata.EncodeDataset(mle.Channel{Channel: 15}, 0xface))
		h.inject(testParent(3, 1, 64), mle.CmdAnnounce, announce(50, 20, 0xbeef))

		tx, ok := h.svc.Last(mle.CmdAnnounce)
		require.True(t, ok)
		assert.Equal(t, mle.AllNodesMulticast, tx.Destination)
		ch, _ := mle.ReadChannel(tx.Payload)
		assert.Equal(t, uint16(15), ch.Channel)
		pan, _ := mle.ReadUint16(tx.Payload, mle.TLVPANID)
		assert.Equal(t, uint16(0xface), pan)
		assert.Zero(t, h.sup.count("TemporaryAttach"))
	})

	t.Run("newer dataset", func(t *testing.T) {
		h := newHarness(t)
		h.data.ProcessActive(local, netdata.EncodeDataset(mle.Channel{Channel: 15}, 0xface))
		h.inject(testParent(3, 1, 64), mle.CmdAnnounce, announce(200, 20, 0xbeef))

		h.sup.AssertCalled(t, "TemporaryAttach", testIface, mle.Channel{Channel: 20}, uint16(0xbeef), mle.Timestamp{Seconds: 200})
		assert.Empty(t, h.svc.SentCommand(mle.CmdAnnounce))
	})

	t.Run("no local dataset", func(t *testing.T) {
		h := newHarness(t)
		h.inject(testParent(3, 1, 64), mle.CmdAnnounce, announce(1, 11, 0x1234))

		h.sup.AssertCalled(t, "TemporaryAttach", testIface, mle.Channel{Channel: 11}, uint16(0x1234), mle.Timestamp{Seconds: 1})
	})
}

// ============================================================================
// Network data
// ============================================================================

func TestDataResponseIgnoredWhileDetached(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.net.ReplyTo(p, simnet.Transmission{Outbound: mle.Outbound{Command: mle.CmdDataRequest}})
	h.net.Step()

	assert.Zero(t, h.data.Changes())
}

func TestDataResponseFromParentCommitted(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)
	changes := h.data.Changes()

	p.Leader.DataVersion++
	p.Leader.StableDataVersion++
	p.NetworkData = []byte{0x08, 0x01, 0xee}
	h.net.ReplyTo(p, simnet.Transmission{Outbound: mle.Outbound{Command: mle.CmdDataRequest}})
	h.net.Step()

	leader, _ := h.engine.Leader(testIface)
	assert.Equal(t, p.Leader, leader)
	data, _, _ := h.data.NetworkData()
	assert.Equal(t, p.NetworkData, data)
	assert.Equal(t, changes+2, h.data.Changes())
}

func TestDataResponseFromOtherPartitionDropped(t *testing.T) {
	h := newHarness(t)
	h.attach(testParent(1, 1, 64))
	changes := h.data.Changes()

	stranger := testParent(3, 2, 64)
	h.net.ReplyTo(stranger, simnet.Transmission{Outbound: mle.Outbound{Command: mle.CmdDataRequest}})
	h.net.Step()

	assert.Equal(t, changes, h.data.Changes())
	leader, _ := h.engine.Leader(testIface)
	assert.Equal(t, uint32(1), leader.PartitionID)
}

func TestDataResponseWithoutNetworkDataRequestsIt(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)
	p.IgnoreDataRequest = true
	changes := h.data.Changes()

	heard := p.Leader
	heard.DataVersion++
	payload := mle.AppendUint16(nil, mle.TLVSourceAddress, p.ShortAddress)
	payload = mle.AppendLeaderData(payload, heard)
	h.inject(p, mle.CmdDataResponse, payload)

	req, ok := h.svc.Last(mle.CmdDataRequest)
	require.True(t, ok)
	assert.Equal(t, mle.LinkLocalFromExt(p.Ext), req.Destination)
	assert.Len(t, h.svc.SentCommand(mle.CmdDataRequest), 1)
	assert.Equal(t, changes, h.data.Changes())

	leader, _ := h.engine.Leader(testIface)
	assert.Equal(t, p.Leader.DataVersion, leader.DataVersion, "version advances only with committed data")
}

func TestDataResponseWithCurrentVersionSendsNoRequest(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)

	payload := mle.AppendUint16(nil, mle.TLVSourceAddress, p.ShortAddress)
	payload = mle.AppendLeaderData(payload, p.Leader)
	h.inject(p, mle.CmdDataResponse, payload)

	assert.Empty(t, h.svc.SentCommand(mle.CmdDataRequest))
}

func TestDataResponseWithNewerDatasetTimestampResyncs(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)
	p.IgnoreDataRequest = true
	changes := h.data.Changes()

	heard := p.Leader
	heard.DataVersion++
	payload := mle.AppendUint16(nil, mle.TLVSourceAddress, p.ShortAddress)
	payload = mle.AppendLeaderData(payload, heard)
	payload = mle.AppendTLV(payload, mle.TLVNetworkData, []byte{0x08, 0x01, 0x01})
	payload = mle.AppendTimestamp(payload, mle.TLVActiveTimestamp, mle.Timestamp{Seconds: 500})
	h.inject(p, mle.CmdDataResponse, payload)

	assert.Len(t, h.svc.SentCommand(mle.CmdDataRequest), 1)
	assert.Equal(t, changes, h.data.Changes())
}

func TestDataResponseWithDatasetStoresIt(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)

	heard := p.Leader
	heard.DataVersion++
	ts := mle.Timestamp{Seconds: 500}
	payload := mle.AppendUint16(nil, mle.TLVSourceAddress, p.ShortAddress)
	payload = mle.AppendLeaderData(payload, heard)
	payload = mle.AppendTLV(payload, mle.TLVNetworkData, []byte{0x08, 0x01, 0x01})
	payload = mle.AppendTimestamp(payload, mle.TLVActiveTimestamp, ts)
	payload = mle.AppendTLV(payload, mle.TLVActiveOperationalDataset, netdata.EncodeDataset(mle.Channel{Channel: 25}, 0xabcd))
	h.inject(p, mle.CmdDataResponse, payload)

	ds, ok := h.data.Active()
	require.True(t, ok)
	assert.Equal(t, ts, ds.Timestamp)
	assert.Equal(t, uint16(25), ds.Channel.Channel)
	leader, _ := h.engine.Leader(testIface)
	assert.Equal(t, heard, leader)
	assert.Empty(t, h.svc.SentCommand(mle.CmdDataRequest))
}

// ============================================================================
// Child-Update responder
// ============================================================================

func TestChildUpdateRequestFromParentAnswered(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)

	chal := []byte{5, 6, 7, 8, 9, 10, 11, 12}
	payload := mle.AppendUint16(nil, mle.TLVSourceAddress, p.ShortAddress)
	payload = mle.AppendTLV(payload, mle.TLVChallenge, chal)
	payload = mle.AppendLeaderData(payload, p.Leader)
	payload = mle.AppendRequest(payload, mle.TLVTimeout)
	h.inject(p, mle.CmdChildUpdateRequest, payload)

	tx, ok := h.svc.Last(mle.CmdChildUpdateResponse)
	require.True(t, ok)
	assert.Equal(t, mle.LinkLocalFromExt(p.Ext), tx.Destination)
	resp, _ := mle.FindTLV(tx.Payload, mle.TLVResponse)
	assert.Equal(t, chal, resp)
	timeout, _ := mle.ReadUint32(tx.Payload, mle.TLVTimeout)
	assert.Equal(t, uint32(240), timeout)
	src, _ := mle.ReadUint16(tx.Payload, mle.TLVSourceAddress)
	assert.Equal(t, p.ShortAddress|1, src)
	assert.False(t, mle.HasTLV(tx.Payload, mle.TLVStatus))
}

func TestChildUpdateRequestFromStrangerRejected(t *testing.T) {
	h := newHarness(t)
	h.attach(testParent(1, 1, 64))
	stranger := testParent(3, 1, 64)

	chal := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	h.inject(stranger, mle.CmdChildUpdateRequest, mle.AppendTLV(nil, mle.TLVChallenge, chal))

	tx, ok := h.svc.Last(mle.CmdChildUpdateResponse)
	require.True(t, ok)
	assert.Equal(t, mle.LinkLocalFromExt(stranger.Ext), tx.Destination)
	st, _ := mle.ReadUint8(tx.Payload, mle.TLVStatus)
	assert.Equal(t, mle.StatusError, st)
	resp, _ := mle.FindTLV(tx.Payload, mle.TLVResponse)
	assert.Equal(t, chal, resp)

	h.inject(stranger, mle.CmdChildUpdateRequest, mle.AppendUint16(nil, mle.TLVSourceAddress, stranger.ShortAddress))
	assert.Len(t, h.svc.SentCommand(mle.CmdChildUpdateResponse), 1, "no answer without challenge")
}

func TestChildUpdateNegativeResponseEncoding(t *testing.T) {
	h := newHarness(t)
	dst := mle.LinkLocalFromExt(mle.ExtAddress{0x0b, 1})

	require.NoError(t, h.engine.SendChildUpdateNegativeResponse(testIface, dst, []byte{1, 2, 3, 4}))

	tx, ok := h.svc.Last(mle.CmdChildUpdateResponse)
	require.True(t, ok)
	assert.Equal(t, dst, tx.Destination)
	want := []byte{byte(mle.TLVStatus), 1, mle.StatusError, byte(mle.TLVResponse), 4, 1, 2, 3, 4}
	assert.Equal(t, want, tx.Payload)
	assert.Zero(t, h.svc.Outstanding())
}

func TestRouterHandsOtherCommandsToRouterHandler(t *testing.T) {
	h := newHarness(t)
	h.attach(testParent(1, 1, 64))
	require.NoError(t, h.engine.PromoteToRouter(testIface, 5))

	p := testParent(3, 1, 64)
	h.inject(p, mle.CmdLinkRequest, mle.AppendTLV(nil, mle.TLVChallenge, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	h.router.AssertNumberOfCalls(t, "HandleRouterMessage", 1)
}
