// Package supervisor restarts attach attempts after the bootstrap engine
// reports a connection error.
//
// Each error kind maps to the attach mode of the next attempt: failed
// attaches and failed synchronizations restart discovery, a lost parent or
// a changed short address reattaches to the same partition, and a
// partition merge attaches to any other partition. Restarts are delayed by
// an exponential backoff that is reset once the interface is attached.
package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mash-protocol/mle-go/pkg/backoff"
	"github.com/mash-protocol/mle-go/pkg/bootstrap"
	"github.com/mash-protocol/mle-go/pkg/mle"
)

// ErrInvalidConfig is returned for an unusable configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Engine is the part of the bootstrap engine the supervisor drives.
type Engine interface {
	StartAttach(id mle.InterfaceID, mode bootstrap.AttachMode) error
	ResetInterface(id mle.InterfaceID) error
}

// ScheduleFunc runs fn after d. It must run fn on the engine's event loop.
type ScheduleFunc func(d time.Duration, fn func())

// Config configures a Supervisor.
type Config struct {
	// Backoff delays restarts.
	Backoff backoff.Config

	// Schedule runs delayed restarts.
	Schedule ScheduleFunc

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a configuration without a scheduler.
func DefaultConfig() Config {
	return Config{
		Backoff: backoff.Config{
			Initial:    500 * time.Millisecond,
			Max:        30 * time.Second,
			Multiplier: 2,
			Jitter:     0.25,
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Schedule == nil {
		return fmt.Errorf("%w: missing scheduler", ErrInvalidConfig)
	}
	if c.Backoff.Initial <= 0 || c.Backoff.Max < c.Backoff.Initial {
		return fmt.Errorf("%w: backoff %v..%v", ErrInvalidConfig, c.Backoff.Initial, c.Backoff.Max)
	}
	return nil
}

// TemporaryAttach is a recorded request to attach to an announced dataset.
type TemporaryAttach struct {
	Channel   mle.Channel
	PANID     uint16
	Timestamp mle.Timestamp
}

// Status is the supervisor's view of one interface.
type Status struct {
	Attached  bool
	LastError bootstrap.ConnectionError
	LastLink  *mle.ExtAddress
	NextMode  bootstrap.AttachMode
	Restarts  int
	Temporary []TemporaryAttach
}

type ifaceState struct {
	status  Status
	backoff *backoff.Backoff
	pending bool
}

// Supervisor implements bootstrap.Supervisor.
type Supervisor struct {
	cfg    Config
	engine Engine
	ifaces map[mle.InterfaceID]*ifaceState
}

// New creates a supervisor. Bind must be called before errors arrive.
func New(cfg Config) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Supervisor{cfg: cfg, ifaces: make(map[mle.InterfaceID]*ifaceState)}, nil
}

// Bind sets the engine restarted by the supervisor.
func (s *Supervisor) Bind(engine Engine) {
	s.engine = engine
}

// Status returns the status of an interface.
func (s *Supervisor) Status(id mle.InterfaceID) Status {
	st := s.state(id).status
	st.Temporary = append([]TemporaryAttach(nil), st.Temporary...)
	return st
}

func (s *Supervisor) state(id mle.InterfaceID) *ifaceState {
	st, ok := s.ifaces[id]
	if !ok {
		st = &ifaceState{backoff: backoff.New(s.cfg.Backoff)}
		s.ifaces[id] = st
	}
	return st
}

// ModeFor returns the attach mode used after an error of kind.
func ModeFor(kind bootstrap.ConnectionError) bootstrap.AttachMode {
	switch kind {
	case bootstrap.ErrorParentLost, bootstrap.ErrorShortAddressChanged:
		return bootstrap.AttachReattach
	case bootstrap.ErrorPartitionMerge:
		return bootstrap.AttachAny
	default:
		return bootstrap.AttachDiscover
	}
}

// ConnectionError implements bootstrap.Supervisor.
func (s *Supervisor) ConnectionError(id mle.InterfaceID, kind bootstrap.ConnectionError, link *mle.ExtAddress) {
	st := s.state(id)
	st.status.Attached = false
	st.status.LastError = kind
	st.status.LastLink = nil
	if link != nil {
		l := *link
		st.status.LastLink = &l
	}
	s.debugLog("connection error", "iface", id, "kind", kind)
	s.restart(id, ModeFor(kind))
}

// DeviceSynchFail implements bootstrap.Supervisor.
func (s *Supervisor) DeviceSynchFail(id mle.InterfaceID) {
	s.state(id).status.Attached = false
	s.debugLog("synchronization failed", "iface", id)
	s.restart(id, bootstrap.AttachDiscover)
}

// AttachedReady implements bootstrap.Supervisor.
func (s *Supervisor) AttachedReady(id mle.InterfaceID) {
	st := s.state(id)
	st.status.Attached = true
	st.backoff.Reset()
	s.debugLog("attached", "iface", id)
}

// ResetBootstrap implements bootstrap.Supervisor.
func (s *Supervisor) ResetBootstrap(id mle.InterfaceID) {
	st := s.state(id)
	st.status.Attached = false
	if s.engine != nil {
		if err := s.engine.ResetInterface(id); err != nil {
			s.debugLog("reset failed", "iface", id, "error", err)
		}
	}
	s.restart(id, bootstrap.AttachDiscover)
}

// TemporaryAttach implements bootstrap.Supervisor.
func (s *Supervisor) TemporaryAttach(id mle.InterfaceID, ch mle.Channel, panID uint16, ts mle.Timestamp) {
	st := s.state(id)
	st.status.Temporary = append(st.status.Temporary, TemporaryAttach{Channel: ch, PANID: panID, Timestamp: ts})
	s.debugLog("temporary attach requested", "iface", id, "channel", ch.Channel, "pan", panID)
}

// restart schedules an attach attempt. Only one restart is pending per
// interface; a later error updates its mode.
func (s *Supervisor) restart(id mle.InterfaceID, mode bootstrap.AttachMode) {
	st := s.state(id)
	st.status.NextMode = mode
	if st.pending {
		return
	}
	st.pending = true
	delay := st.backoff.Next()
	s.debugLog("restart scheduled", "iface", id, "mode", mode, "delay", delay)
	s.cfg.Schedule(delay, func() {
		st.pending = false
		if s.engine == nil {
			return
		}
		st.status.Restarts++
		if err := s.engine.StartAttach(id, st.status.NextMode); err != nil {
			s.debugLog("restart failed", "iface", id, "error", err)
			s.restart(id, st.status.NextMode)
		}
	})
}

func (s *Supervisor) debugLog(msg string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Debug(msg, args...)
	}
}
