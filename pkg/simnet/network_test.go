package simnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/mle-go/pkg/mle"
)

func testRouter(n byte) *Parent {
	return &Parent{
		Ext:          mle.ExtAddress{0x0a, 0, 0, 0, 0, 0, 0, n},
		ShortAddress: mle.RouterShortAddress(n),
		Leader:       mle.LeaderData{PartitionID: 1, Weighting: 64, DataVersion: 3, StableDataVersion: 4, LeaderRouterID: n},
		Connectivity: mle.Connectivity{LinkQuality3: 1, LeaderCost: 1, IDSequence: 9, ActiveRouters: 2},
		Version:      mle.Version1_3,
		DBM:          -60,
		LinkMargin:   30,
		NetworkData:  []byte{0x08, 0x00},
	}
}

func testREED(n byte) *Parent {
	p := testRouter(n)
	p.ShortAddress = mle.RouterShortAddress(1) | uint16(n)
	return p
}

func parentRequest(t *testing.T, svc *Service, mask uint8) []byte {
	t.Helper()
	msg, err := svc.Allocate(1, 0, true, mle.CmdParentRequest)
	require.NoError(t, err)
	chal := []byte{0xc0, 0xff, 0xee, 0, 0, 0, 0, 1}
	msg.Destination = mle.AllRoutersMulticast
	msg.Payload = mle.AppendTLV(msg.Payload, mle.TLVChallenge, chal)
	msg.Payload = mle.AppendUint8(msg.Payload, mle.TLVScanMask, mask)
	require.NoError(t, svc.Send(msg))
	return chal
}

func unicast(t *testing.T, svc *Service, to *Parent, cmd mle.Command, payload []byte) {
	t.Helper()
	msg, err := svc.Allocate(1, 0, false, cmd)
	require.NoError(t, err)
	msg.Destination = mle.LinkLocalFromExt(to.Ext)
	msg.Payload = append(msg.Payload, payload...)
	require.NoError(t, svc.Send(msg))
}

func TestParentRequestHonorsScanMask(t *testing.T) {
	svc, r := newTestService()
	net := NewNetwork(svc, 1)
	router, reed := testRouter(1), testREED(2)
	net.AddParent(router)
	net.AddParent(reed)

	chal := parentRequest(t, svc, mle.ScanMaskRouters)
	net.RunUntilIdle()
	require.Len(t, r.messages, 1)
	resp := r.messages[0]
	assert.Equal(t, mle.CmdParentResponse, resp.Command)
	ext, ok := resp.SourceExt()
	require.True(t, ok)
	assert.Equal(t, router.Ext, ext)
	echo, ok := resp.Find(mle.TLVResponse)
	require.True(t, ok)
	assert.Equal(t, chal, echo)
	leader, ok := mle.ReadLeaderData(resp.Payload)
	require.True(t, ok)
	assert.Equal(t, router.Leader, leader)
	margin, _ := mle.ReadUint8(resp.Payload, mle.TLVLinkMargin)
	assert.Equal(t, uint8(30), margin)
	assert.Equal(t, int8(-60), resp.DBM)

	r.messages = nil
	parentRequest(t, svc, mle.ScanMaskRouters|mle.ScanMaskREEDs)
	net.RunUntilIdle()
	assert.Len(t, r.messages, 2)

	r.messages = nil
	router.IgnoreParentRequest = true
	parentRequest(t, svc, mle.ScanMaskRouters|mle.ScanMaskREEDs)
	net.RunUntilIdle()
	require.Len(t, r.messages, 1)
	ext, _ = r.messages[0].SourceExt()
	assert.Equal(t, reed.Ext, ext)
}

func TestOtherInterfaceIsNotAnswered(t *testing.T) {
	svc, r := newTestService()
	net := NewNetwork(svc, 2)
	net.AddParent(testRouter(1))

	parentRequest(t, svc, mle.ScanMaskRouters)
	net.RunUntilIdle()
	assert.Empty(t, r.messages)
}

func TestChildIDExchange(t *testing.T) {
	svc, r := newTestService()
	net := NewNetwork(svc, 1)
	p := testRouter(3)
	net.AddParent(p)
	net.AddParent(testRouter(4))

	unicast(t, svc, p, mle.CmdChildIDRequest, nil)
	net.RunUntilIdle()

	require.Len(t, r.messages, 1)
	resp := r.messages[0]
	assert.Equal(t, mle.CmdChildIDResponse, resp.Command)
	addr, ok := mle.ReadUint16(resp.Payload, mle.TLVAddress16)
	require.True(t, ok)
	assert.Equal(t, p.ShortAddress|1, addr)
	data, ok := resp.Find(mle.TLVNetworkData)
	require.True(t, ok)
	assert.Equal(t, p.NetworkData, data)
	assert.Equal(t, uint32(1), p.FrameCounter)

	r.messages = nil
	p.IgnoreChildID = true
	p.ChildAddress = 0x0c07
	unicast(t, svc, p, mle.CmdChildIDRequest, nil)
	net.RunUntilIdle()
	assert.Empty(t, r.messages)

	p.IgnoreChildID = false
	unicast(t, svc, p, mle.CmdChildIDRequest, nil)
	net.RunUntilIdle()
	require.Len(t, r.messages, 1)
	addr, _ = mle.ReadUint16(r.messages[0].Payload, mle.TLVAddress16)
	assert.Equal(t, uint16(0x0c07), addr)
}

func TestChildUpdateEchoesRequest(t *testing.T) {
	svc, r := newTestService()
	net := NewNetwork(svc, 1)
	p := testRouter(3)
	net.AddParent(p)

	chal := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	req := mle.AppendUint8(nil, mle.TLVMode, uint8(mle.ModeRxOnWhenIdle))
	req = mle.AppendTLV(req, mle.TLVChallenge, chal)
	req = mle.AppendUint32(req, mle.TLVTimeout, 240)
	unicast(t, svc, p, mle.CmdChildUpdateRequest, req)
	net.RunUntilIdle()

	require.Len(t, r.messages, 1)
	resp := r.messages[0]
	assert.Equal(t, mle.CmdChildUpdateResponse, resp.Command)
	mode, _ := mle.ReadUint8(resp.Payload, mle.TLVMode)
	assert.Equal(t, uint8(mle.ModeRxOnWhenIdle), mode)
	echo, _ := resp.Find(mle.TLVResponse)
	assert.Equal(t, chal, echo)
	timeout, _ := mle.ReadUint32(resp.Payload, mle.TLVTimeout)
	assert.Equal(t, uint32(240), timeout)
	assert.False(t, resp.Has(mle.TLVStatus))

	r.messages = nil
	p.RejectChildUpdate = true
	unicast(t, svc, p, mle.CmdChildUpdateRequest, req)
	net.RunUntilIdle()
	require.Len(t, r.messages, 1)
	status, ok := mle.ReadUint8(r.messages[0].Payload, mle.TLVStatus)
	require.True(t, ok)
	assert.Equal(t, mle.StatusError, status)
	assert.False(t, r.messages[0].Has(mle.TLVAddress16))

	r.messages = nil
	p.IgnoreChildUpdate = true
	unicast(t, svc, p, mle.CmdChildUpdateRequest, req)
	net.RunUntilIdle()
	assert.Empty(t, r.messages)
}

func TestDataRequest(t *testing.T) {
	svc, r := newTestService()
	net := NewNetwork(svc, 1)
	p := testRouter(3)
	p.KeySequence = 0x85
	net.AddParent(p)

	unicast(t, svc, p, mle.CmdDataRequest, nil)
	net.RunUntilIdle()
	require.Len(t, r.messages, 1)
	resp := r.messages[0]
	assert.Equal(t, mle.CmdDataResponse, resp.Command)
	data, _ := resp.Find(mle.TLVNetworkData)
	assert.Equal(t, p.NetworkData, data)
	assert.Equal(t, mle.KeyIDModeSource4Index, resp.Security.KeyIDMode)
	assert.Equal(t, uint32(0x85), resp.Security.KeySequence)
	assert.Equal(t, uint8(6), resp.Security.KeyIndex)

	r.messages = nil
	p.IgnoreDataRequest = true
	unicast(t, svc, p, mle.CmdDataRequest, nil)
	net.RunUntilIdle()
	assert.Empty(t, r.messages)
}

func TestReplyToUnansweredCommand(t *testing.T) {
	svc, _ := newTestService()
	net := NewNetwork(svc, 1)
	assert.Nil(t, net.ReplyTo(testRouter(1), Transmission{Outbound: mle.Outbound{Command: mle.CmdAdvertisement}}))
}

func TestAdvertisement(t *testing.T) {
	svc, r := newTestService()
	net := NewNetwork(svc, 1)
	router, reed := testRouter(5), testREED(6)

	net.Advertise(router)
	net.Advertise(reed)
	assert.Equal(t, 2, net.Step())

	require.Len(t, r.messages, 2)
	route, ok := mle.ReadRoute64(r.messages[0].Payload)
	require.True(t, ok)
	assert.Equal(t, uint8(9), route.IDSequence)
	assert.True(t, route.HasRouter(5))
	assert.False(t, route.HasRouter(6))
	assert.False(t, r.messages[1].Has(mle.TLVRoute64))
	leader, ok := mle.ReadLeaderData(r.messages[1].Payload)
	require.True(t, ok)
	assert.Equal(t, reed.Leader, leader)
}

func TestInjectSetsInterface(t *testing.T) {
	svc, r := newTestService()
	net := NewNetwork(svc, 4)

	net.Inject(&mle.Message{Command: mle.CmdLinkRequest})
	net.RunUntilIdle()

	require.Len(t, r.messages, 1)
	assert.Equal(t, mle.InterfaceID(4), r.messages[0].Interface)
	assert.Zero(t, net.Step())
}
