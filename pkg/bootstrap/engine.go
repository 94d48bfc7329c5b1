package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"time"

	"github.com/mash-protocol/mle-go/pkg/leaderdata"
	"github.com/mash-protocol/mle-go/pkg/log"
	"github.com/mash-protocol/mle-go/pkg/mle"
)

// ChallengeSize is the size of generated challenges.
const ChallengeSize = 8

// iface is the per-interface context.
type iface struct {
	id   mle.InterfaceID
	cfg  Config
	deps Deps

	state      State
	prevState  State
	attachMode AttachMode
	recv       receiveMode
	attemptID  string

	scanned *ScannedParent
	parent  *ParentInfo
	leader  *mle.LeaderData

	shortAddress      uint16
	router            bool
	activeRouters     uint8
	routerIDSequence  uint8
	releasingRouterID bool

	scanRetryCount  uint8
	parentRequestID mle.MessageID
	childUpdateID   mle.MessageID
	synchRequestID  mle.MessageID
	dataRequestID   mle.MessageID

	// leaderRestartResync is set while a restarted leader waits for the
	// network data it must republish.
	leaderRestartResync bool

	frameCounter uint32
}

// Engine runs the attach state machine of all registered interfaces.
type Engine struct {
	ifaces map[mle.InterfaceID]*iface
}

// NewEngine creates an engine without interfaces.
func NewEngine() *Engine {
	return &Engine{ifaces: make(map[mle.InterfaceID]*iface)}
}

// AddInterface registers an interface.
func (e *Engine) AddInterface(id mle.InterfaceID, cfg Config, deps Deps) error {
	if _, ok := e.ifaces[id]; ok {
		return fmt.Errorf("%w: %d", ErrInterfaceExists, id)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := deps.validate(); err != nil {
		return err
	}
	e.ifaces[id] = &iface{
		id:           id,
		cfg:          cfg,
		deps:         deps,
		shortAddress: mle.InvalidShortAddress,
	}
	return nil
}

// RemoveInterface drops an interface and all its pending messages.
func (e *Engine) RemoveInterface(id mle.InterfaceID) error {
	ifc, err := e.lookup(id)
	if err != nil {
		return err
	}
	ifc.deps.Messages.ClearQueue(id)
	ifc.freePending()
	delete(e.ifaces, id)
	return nil
}

// Interfaces returns the registered interface ids.
func (e *Engine) Interfaces() []mle.InterfaceID {
	ids := make([]mle.InterfaceID, 0, len(e.ifaces))
	for id := range e.ifaces {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) lookup(id mle.InterfaceID) (*iface, error) {
	ifc, ok := e.ifaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInterface, id)
	}
	return ifc, nil
}

// State returns the attach state of an interface.
func (e *Engine) State(id mle.InterfaceID) State {
	if ifc, ok := e.ifaces[id]; ok {
		return ifc.state
	}
	return StateIdle
}

// Role returns the device role of an interface.
func (e *Engine) Role(id mle.InterfaceID) Role {
	if ifc, ok := e.ifaces[id]; ok {
		return ifc.role()
	}
	return RoleDetached
}

// Parent returns a copy of the parent record.
func (e *Engine) Parent(id mle.InterfaceID) (ParentInfo, bool) {
	ifc, ok := e.ifaces[id]
	if !ok || ifc.parent == nil {
		return ParentInfo{}, false
	}
	return *ifc.parent, true
}

// Leader returns the remembered leader data.
func (e *Engine) Leader(id mle.InterfaceID) (mle.LeaderData, bool) {
	ifc, ok := e.ifaces[id]
	if !ok || ifc.leader == nil {
		return mle.LeaderData{}, false
	}
	return *ifc.leader, true
}

// Candidate returns a copy of the current parent candidate.
func (e *Engine) Candidate(id mle.InterfaceID) (ScannedParent, bool) {
	ifc, ok := e.ifaces[id]
	if !ok || ifc.scanned == nil {
		return ScannedParent{}, false
	}
	sp := *ifc.scanned
	sp.Challenge = append([]byte(nil), sp.Challenge...)
	return sp, true
}

// ShortAddress returns the short address of an interface, or
// mle.InvalidShortAddress.
func (e *Engine) ShortAddress(id mle.InterfaceID) uint16 {
	if ifc, ok := e.ifaces[id]; ok {
		return ifc.shortAddress
	}
	return mle.InvalidShortAddress
}

func (ifc *iface) role() Role {
	if !ifc.state.attached() {
		return RoleDetached
	}
	switch {
	case ifc.router:
		return RoleRouter
	case !ifc.cfg.Mode.RxOnWhenIdle():
		return RoleSleepyEndDevice
	case !ifc.cfg.Mode.FullDevice():
		return RoleMinimalEndDevice
	case ifc.cfg.RouterCapable:
		return RoleREED
	default:
		return RoleFullEndDevice
	}
}

func (ifc *iface) versionAware() bool {
	return ifc.cfg.ThreadVersion >= mle.Version1_2
}

// setState changes the attach state and records the transition.
func (e *Engine) setState(ifc *iface, s State, reason string) {
	if ifc.state == s {
		return
	}
	old := ifc.state
	ifc.state = s
	ifc.debugLog("attach state", "old", old, "new", s, "reason", reason)
	ifc.capture(log.Event{
		Direction:   log.DirectionLocal,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{Entity: log.StateEntityAttach, OldState: old.String(), NewState: s.String(), Reason: reason},
	})
}

func (ifc *iface) setLeader(l mle.LeaderData, reason string) {
	if ifc.leader == nil || !ifc.leader.SamePartition(l) {
		old := ""
		if ifc.leader != nil {
			old = fmt.Sprintf("%08x/%d", ifc.leader.PartitionID, ifc.leader.Weighting)
		}
		ifc.capture(log.Event{
			Direction: log.DirectionLocal,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityPartition,
				OldState: old,
				NewState: fmt.Sprintf("%08x/%d", l.PartitionID, l.Weighting),
				Reason:   reason,
			},
		})
	}
	ifc.leader = &l
}

// reconcileLeader folds heard leader data into the local copy and reports
// whether network data must be requested.
func (ifc *iface) reconcileLeader(heard mle.LeaderData) bool {
	if ifc.leader == nil {
		l := heard
		l.DataVersion--
		l.StableDataVersion--
		ifc.setLeader(l, "first leader data")
		return true
	}
	l := *ifc.leader
	refresh := leaderdata.Reconcile(&l, heard)
	ifc.setLeader(l, "leader data heard")
	return refresh
}

func (ifc *iface) debugLog(msg string, args ...any) {
	if ifc.cfg.Logger != nil {
		ifc.cfg.Logger.Debug(msg, append([]any{"iface", ifc.id}, args...)...)
	}
}

func (ifc *iface) logAt(level slog.Level, msg string, args ...any) {
	if ifc.cfg.Logger != nil {
		ifc.cfg.Logger.Log(context.Background(), level, msg, append([]any{"iface", ifc.id}, args...)...)
	}
}

func (ifc *iface) capture(ev log.Event) {
	if ifc.cfg.ProtocolLogger == nil {
		return
	}
	ev.Timestamp = time.Now()
	ev.Interface = ifc.id
	ev.AttemptID = ifc.attemptID
	ev.Role = ifc.role().String()
	ifc.cfg.ProtocolLogger.Log(ev)
}

// challenge returns fresh random challenge bytes.
func (ifc *iface) challenge() ([]byte, error) {
	b := make([]byte, ChallengeSize)
	if _, err := io.ReadFull(ifc.cfg.rand(), b); err != nil {
		return nil, fmt.Errorf("challenge: %w", err)
	}
	return b, nil
}

// send allocates, fills and sends an outbound message.
func (e *Engine) send(ifc *iface, cmd mle.Command, dst netip.Addr, payload []byte, kind mle.TimeoutKind, tp mle.TimeoutParams) (*mle.Outbound, error) {
	svc := ifc.deps.Messages
	msg, err := svc.Allocate(ifc.id, len(payload), dst.IsMulticast(), cmd)
	if err != nil {
		return nil, fmt.Errorf("allocate %s: %w", cmd, err)
	}
	msg.Command = cmd
	msg.Interface = ifc.id
	msg.Destination = dst
	msg.Multicast = dst.IsMulticast()
	msg.Payload = payload
	msg.Security = ifc.deps.Keys.MLEParams()
	msg.Kind = kind
	if kind != mle.TimeoutNone {
		msg.Timeout = tp
	}
	if err := svc.Send(msg); err != nil {
		svc.Free(msg.ID)
		return nil, fmt.Errorf("send %s: %w", cmd, err)
	}
	ifc.frameCounter++

	ev := log.Event{Direction: log.DirectionOut, Category: log.CategoryMessage, Message: log.NewMessageEvent(cmd, msg.ID, payload)}
	if ext, ok := mle.ExtFromLinkLocal(dst); ok {
		ev.Peer = ext.String()
	}
	ifc.capture(ev)
	return msg, nil
}

// free releases an outstanding message id if set and clears it.
func (ifc *iface) free(id *mle.MessageID) {
	if *id != 0 {
		ifc.deps.Messages.Free(*id)
		*id = 0
	}
}

// freePending releases every outstanding exchange and the candidate.
func (ifc *iface) freePending() {
	ifc.free(&ifc.parentRequestID)
	ifc.free(&ifc.childUpdateID)
	ifc.free(&ifc.synchRequestID)
	ifc.free(&ifc.dataRequestID)
	if sp := ifc.takeCandidate(); sp != nil && sp.ChildIDRequestID != 0 {
		ifc.deps.Messages.Free(sp.ChildIDRequestID)
	}
}

// connectionError reports a fault to the supervisor.
func (e *Engine) connectionError(ifc *iface, kind ConnectionError, link *mle.ExtAddress) {
	ifc.logAt(slog.LevelInfo, "connection error", "kind", kind)
	code := int(kind)
	ev := log.Event{
		Direction: log.DirectionLocal,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Message: kind.String(), Code: &code, Context: "connection error"},
	}
	if link != nil {
		ev.Peer = link.String()
	}
	ifc.capture(ev)
	ifc.deps.Supervisor.ConnectionError(ifc.id, kind, link)
}

// attachedReady marks the end of an attach attempt.
func (e *Engine) attachedReady(ifc *iface) {
	ifc.attemptID = ""
	ifc.deps.Supervisor.AttachedReady(ifc.id)
}

// drop logs a discarded message.
func (ifc *iface) drop(msg *mle.Message, reason string) {
	ifc.debugLog("drop", "command", msg.Command, "source", msg.Source, "reason", reason)
}

func timeoutSeconds(d time.Duration) uint32 {
	return uint32(d / time.Second)
}
