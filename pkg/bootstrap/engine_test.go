package bootstrap

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/mle-go/pkg/log"
	"github.com/mash-protocol/mle-go/pkg/mle"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"missing ext address", func(c *Config) { c.ExtAddress = mle.ExtAddress{} }, false},
		{"sleepy full device", func(c *Config) { c.Mode = mle.ModeFullDevice }, false},
		{"router capable minimal device", func(c *Config) { c.Mode = mle.ModeRxOnWhenIdle }, false},
		{"minimal device", func(c *Config) { c.Mode = mle.ModeRxOnWhenIdle; c.RouterCapable = false }, true},
		{"sleepy device", func(c *Config) { c.Mode = 0; c.RouterCapable = false }, true},
		{"old version", func(c *Config) { c.ThreadVersion = 1 }, false},
		{"short child timeout", func(c *Config) { c.ChildTimeout = 500 * time.Millisecond }, false},
		{"unknown link policy", func(c *Config) { c.LinkPolicy = 7 }, false},
		{"zero timeout", func(c *Config) { c.Timeouts.Synch.TimeoutInit = 0 }, false},
		{"inverted timeouts", func(c *Config) { c.Timeouts.ChildID.TimeoutMax = 100 * time.Millisecond }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ExtAddress = nodeExt
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestAddInterfaceErrors(t *testing.T) {
	h := newHarness(t)
	cfg := DefaultConfig()
	cfg.ExtAddress = nodeExt

	assert.ErrorIs(t, h.engine.AddInterface(testIface, cfg, h.deps()), ErrInterfaceExists)
	assert.ErrorIs(t, h.engine.AddInterface(2, DefaultConfig(), h.deps()), ErrInvalidConfig)

	deps := h.deps()
	deps.Keys = nil
	assert.ErrorIs(t, h.engine.AddInterface(2, cfg, deps), ErrMissingDependency)

	deps = h.deps()
	deps.Children, deps.Devices, deps.Poller, deps.Router = nil, nil, nil, nil
	assert.NoError(t, h.engine.AddInterface(2, cfg, deps))
	assert.ElementsMatch(t, []mle.InterfaceID{testIface, 2}, h.engine.Interfaces())
}

func TestUnknownInterfaceAccessors(t *testing.T) {
	e := NewEngine()

	assert.Equal(t, StateIdle, e.State(3))
	assert.Equal(t, RoleDetached, e.Role(3))
	assert.Equal(t, mle.InvalidShortAddress, e.ShortAddress(3))
	_, ok := e.Parent(3)
	assert.False(t, ok)
	_, ok = e.Leader(3)
	assert.False(t, ok)
	_, ok = e.Candidate(3)
	assert.False(t, ok)
	assert.ErrorIs(t, e.RemoveInterface(3), ErrUnknownInterface)
	assert.Equal(t, mle.GiveUp, e.HandleTimeout(&mle.Outbound{Interface: 3, Kind: mle.TimeoutSynch}, false))
}

func TestRemoveInterfaceFreesMessages(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartAttach(testIface, AttachDiscover))
	require.Equal(t, 1, h.svc.Outstanding())

	require.NoError(t, h.engine.RemoveInterface(testIface))
	assert.Zero(t, h.svc.Outstanding())
	assert.Empty(t, h.engine.Interfaces())
}

func TestInterfacesAreIndependent(t *testing.T) {
	h := newHarness(t)
	cfg := DefaultConfig()
	cfg.ExtAddress = mle.ExtAddress{0x02, 0, 0, 0, 0, 0, 0, 0x02}
	require.NoError(t, h.engine.AddInterface(2, cfg, h.deps()))

	require.NoError(t, h.engine.StartAttach(2, AttachDiscover))
	tx, ok := h.svc.Last(mle.CmdParentRequest)
	require.True(t, ok)
	assert.Equal(t, mle.InterfaceID(2), tx.Interface)
	assert.Equal(t, StateIdle, h.state())
	assert.Equal(t, StateMLEScan, h.engine.State(2))
}

func TestStaleTimeoutGivesUp(t *testing.T) {
	h := newHarness(t)
	for _, kind := range []mle.TimeoutKind{
		mle.TimeoutParentRequest,
		mle.TimeoutChildIDRequest,
		mle.TimeoutChildUpdate,
		mle.TimeoutSynch,
		mle.TimeoutDataRequest,
	} {
		d := h.engine.HandleTimeout(&mle.Outbound{ID: 77, Interface: testIface, Kind: kind}, false)
		assert.Equal(t, mle.GiveUp, d, "kind %v", kind)
	}
	assert.Empty(t, h.sup.Calls)
}

type captureLogger struct {
	events []log.Event
}

func (c *captureLogger) Log(ev log.Event) {
	c.events = append(c.events, ev)
}

func TestProtocolCapture(t *testing.T) {
	capture := &captureLogger{}
	h := newHarness(t, func(c *Config) { c.ProtocolLogger = capture })
	h.attach(testParent(1, 1, 64))

	var states []string
	attempt := ""
	for _, ev := range capture.events {
		assert.Equal(t, testIface, ev.Interface)
		if ev.Category == log.CategoryState && ev.StateChange.Entity == log.StateEntityAttach {
			states = append(states, ev.StateChange.NewState)
			if attempt == "" {
				attempt = ev.AttemptID
			}
			assert.Equal(t, attempt, ev.AttemptID)
		}
	}
	assert.Equal(t, []string{"NETWORK_DISCOVER", "MLE_SCAN", "ATTACH_READY", "CHILD_ID_REQ", "CONNECTED"}, states)
	assert.NotEmpty(t, attempt)

	var out, in int
	for _, ev := range capture.events {
		if ev.Category != log.CategoryMessage {
			continue
		}
		switch ev.Direction {
		case log.DirectionOut:
			out++
		case log.DirectionIn:
			in++
		}
	}
	assert.Equal(t, 2, out, "parent request and child id request")
	assert.Equal(t, 2, in, "parent response and child id response")
}

func TestDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := newHarness(t, func(c *Config) { c.Logger = logger })
	h.attach(testParent(1, 1, 64))

	assert.Contains(t, buf.String(), "attach state")
	assert.Contains(t, buf.String(), "msg=attached")
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "CHILD_ID_REQ", StateChildIDRequest.String())
	assert.Equal(t, "REATTACH_RETRY", AttachReattachRetry.String())
	assert.Equal(t, "NETWORK_DISCOVER", AttachDiscover.String())
	assert.Equal(t, "SED", RoleSleepyEndDevice.String())
	assert.Equal(t, "PARTITION_MERGE", ErrorPartitionMerge.String())
	assert.Equal(t, "ROUTERS_ONLY", LinkPolicyRoutersOnly.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
