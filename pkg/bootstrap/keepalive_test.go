package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/mle-go/pkg/mle"
)

func TestTriggerChildUpdateRequiresParent(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	assert.ErrorIs(t, h.engine.TriggerChildUpdate(testIface, p.Ext), ErrNoParent)

	h.attach(p)
	other := testParent(2, 1, 64)
	assert.ErrorIs(t, h.engine.TriggerChildUpdate(testIface, other.Ext), ErrNotParent)
}

func TestChildUpdateRequestContent(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)

	require.NoError(t, h.engine.TriggerChildUpdate(testIface, p.Ext))
	tx, ok := h.svc.Last(mle.CmdChildUpdateRequest)
	require.True(t, ok)
	assert.Equal(t, mle.LinkLocalFromExt(p.Ext), tx.Destination)

	src, _ := mle.ReadUint16(tx.Payload, mle.TLVSourceAddress)
	assert.Equal(t, p.ShortAddress|1, src)
	timeout, _ := mle.ReadUint32(tx.Payload, mle.TLVTimeout)
	assert.Equal(t, uint32(240), timeout)
	leader, ok := mle.ReadLeaderData(tx.Payload)
	require.True(t, ok)
	assert.Equal(t, p.Leader, leader)
	assert.False(t, mle.HasTLV(tx.Payload, mle.TLVAddressRegistration))
	assert.False(t, mle.HasTLV(tx.Payload, mle.TLVChallenge))
}

func TestChildUpdateSingleFlight(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)
	p.IgnoreChildUpdate = true

	require.NoError(t, h.engine.TriggerChildUpdate(testIface, p.Ext))
	require.NoError(t, h.engine.TriggerChildUpdate(testIface, p.Ext))

	assert.Len(t, h.svc.SentCommand(mle.CmdChildUpdateRequest), 1)
	par, _ := h.engine.Parent(testIface)
	assert.True(t, par.ChildUpdateProcessActive)
	assert.True(t, par.ChildUpdatePending)
	h.poller.AssertCalled(t, "SetFastPoll", testIface, true)
}

func TestChildUpdatePendingFollowUp(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)

	require.NoError(t, h.engine.TriggerChildUpdate(testIface, p.Ext))
	require.NoError(t, h.engine.TriggerChildUpdate(testIface, p.Ext))
	h.net.RunUntilIdle()

	assert.Len(t, h.svc.SentCommand(mle.CmdChildUpdateRequest), 2)
	par, _ := h.engine.Parent(testIface)
	assert.False(t, par.ChildUpdateProcessActive)
	assert.False(t, par.ChildUpdatePending)
	assert.Zero(t, h.svc.Outstanding())
	h.poller.AssertCalled(t, "SetFastPoll", testIface, false)
}

func TestChildUpdateExhaustedResetsBootstrap(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)
	p.IgnoreChildUpdate = true

	require.NoError(t, h.engine.TriggerChildUpdate(testIface, p.Ext))
	h.net.RunFor(12*time.Second, 100*time.Millisecond)

	assert.Len(t, h.svc.SentCommand(mle.CmdChildUpdateRequest), 4)
	h.sup.AssertNumberOfCalls(t, "ResetBootstrap", 1)
	par, _ := h.engine.Parent(testIface)
	assert.False(t, par.ChildUpdateProcessActive)
	assert.Zero(t, h.svc.Outstanding())
}

func TestChildUpdateRejectedLosesParent(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)
	p.RejectChildUpdate = true

	require.NoError(t, h.engine.TriggerChildUpdate(testIface, p.Ext))
	h.net.RunUntilIdle()

	assert.Equal(t, []ConnectionError{ErrorParentLost}, h.sup.connectionErrors())
	par, _ := h.engine.Parent(testIface)
	assert.False(t, par.ChildUpdateProcessActive)
	assert.Zero(t, h.svc.Outstanding())
}

func TestChildUpdateResponseRefreshesNetworkData(t *testing.T) {
	h := newHarness(t)
	p := testParent(1, 1, 64)
	h.attach(p)

	p.Leader.DataVersion++
	p.NetworkData = []byte{0x08, 0x01, 0xdd}
	require.NoError(t, h.engine.TriggerChildUpdate(testIface, p.Ext))
	h.net.RunUntilIdle()

	assert.Len(t, h.svc.SentCommand(mle.CmdDataRequest), 1)
	leader, _ := h.engine.Leader(testIface)
	assert.Equal(t, p.Leader, leader)
	data, _, _ := h.data.NetworkData()
	assert.Equal(t, p.NetworkData, data)
}
