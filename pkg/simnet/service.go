package simnet

import (
	"bytes"
	"sort"
	"time"

	"github.com/mash-protocol/mle-go/pkg/backoff"
	"github.com/mash-protocol/mle-go/pkg/mle"
)

// Transmission is one transmission of an outbound message.
type Transmission struct {
	mle.Outbound

	// Attempt is 0 for the first transmission and counts retransmissions.
	Attempt int
	At      time.Time
}

type buffer struct {
	msg      *mle.Outbound
	sent     bool
	attempt  int
	schedule []time.Duration
	deadline time.Time
}

type timer struct {
	seq uint64
	at  time.Time
	fn  func()
}

// Service is an in-memory mle.MessageService.
type Service struct {
	receiver mle.Receiver
	now      time.Time

	nextID  mle.MessageID
	buffers map[mle.MessageID]*buffer

	log    []Transmission
	outbox []Transmission

	failAllocs int
	timers     []timer
	timerSeq   uint64
}

// NewService creates a service whose clock starts at start.
func NewService(start time.Time) *Service {
	return &Service{
		now:     start,
		buffers: make(map[mle.MessageID]*buffer),
	}
}

// SetReceiver sets the consumer of deliveries and timeouts.
func (s *Service) SetReceiver(r mle.Receiver) {
	s.receiver = r
}

// Now returns the virtual time.
func (s *Service) Now() time.Time {
	return s.now
}

// FailAllocations makes the next n allocations fail with mle.ErrNoBuffers.
func (s *Service) FailAllocations(n int) {
	s.failAllocs = n
}

// Allocate implements mle.MessageService.
func (s *Service) Allocate(iface mle.InterfaceID, size int, multicast bool, cmd mle.Command) (*mle.Outbound, error) {
	if s.failAllocs > 0 {
		s.failAllocs--
		return nil, mle.ErrNoBuffers
	}
	s.nextID++
	if s.nextID == 0 {
		s.nextID++
	}
	msg := &mle.Outbound{
		ID:        s.nextID,
		Interface: iface,
		Command:   cmd,
		Multicast: multicast,
		Payload:   make([]byte, 0, size),
	}
	s.buffers[msg.ID] = &buffer{msg: msg}
	return msg, nil
}

// Send implements mle.MessageService.
func (s *Service) Send(msg *mle.Outbound) error {
	b, ok := s.buffers[msg.ID]
	if !ok {
		return mle.ErrNoBuffers
	}
	b.sent = true
	s.transmit(b)
	if msg.Kind == mle.TimeoutNone {
		delete(s.buffers, msg.ID)
		return nil
	}
	b.schedule = backoff.Retransmissions(msg.Timeout.TimeoutInit, msg.Timeout.TimeoutMax, msg.Timeout.RetransMax)
	if len(b.schedule) == 0 {
		delete(s.buffers, msg.ID)
		return nil
	}
	b.deadline = s.now.Add(msg.Timeout.Delay + b.schedule[0])
	return nil
}

func (s *Service) transmit(b *buffer) {
	tx := Transmission{Outbound: *b.msg, Attempt: b.attempt, At: s.now}
	tx.Payload = append([]byte(nil), b.msg.Payload...)
	s.log = append(s.log, tx)
	s.outbox = append(s.outbox, tx)
}

// Free implements mle.MessageService.
func (s *Service) Free(id mle.MessageID) {
	delete(s.buffers, id)
}

// ValidateResponse implements mle.MessageService. It matches response
// against the Challenge TLV of the live messages of iface.
func (s *Service) ValidateResponse(iface mle.InterfaceID, response []byte) mle.MessageID {
	if len(response) == 0 {
		return 0
	}
	for id, b := range s.buffers {
		if b.msg.Interface != iface {
			continue
		}
		if chal, ok := mle.FindTLV(b.msg.Payload, mle.TLVChallenge); ok && bytes.Equal(chal, response) {
			return id
		}
	}
	return 0
}

// ClearQueue implements mle.MessageService.
func (s *Service) ClearQueue(iface mle.InterfaceID) {
	for id, b := range s.buffers {
		if b.msg.Interface == iface {
			delete(s.buffers, id)
		}
	}
}

// Live reports whether a buffer is allocated.
func (s *Service) Live(id mle.MessageID) bool {
	_, ok := s.buffers[id]
	return ok
}

// Outstanding returns the number of allocated buffers.
func (s *Service) Outstanding() int {
	return len(s.buffers)
}

// Sent returns every transmission so far, retransmissions included.
func (s *Service) Sent() []Transmission {
	return append([]Transmission(nil), s.log...)
}

// SentCommand returns the transmissions of cmd.
func (s *Service) SentCommand(cmd mle.Command) []Transmission {
	var out []Transmission
	for _, tx := range s.log {
		if tx.Command == cmd {
			out = append(out, tx)
		}
	}
	return out
}

// Last returns the most recent transmission of cmd.
func (s *Service) Last(cmd mle.Command) (Transmission, bool) {
	for i := len(s.log) - 1; i >= 0; i-- {
		if s.log[i].Command == cmd {
			return s.log[i], true
		}
	}
	return Transmission{}, false
}

// TakeOutbox returns and clears the transmissions not yet delivered to a
// Network.
func (s *Service) TakeOutbox() []Transmission {
	out := s.outbox
	s.outbox = nil
	return out
}

// Deliver hands a received message to the receiver.
func (s *Service) Deliver(msg *mle.Message) {
	if s.receiver != nil {
		s.receiver.HandleMessage(msg)
	}
}

// FireTimeout runs the retransmission timeout of id immediately and
// applies the receiver's decision.
func (s *Service) FireTimeout(id mle.MessageID) mle.RetryDecision {
	b, ok := s.buffers[id]
	if !ok || !b.sent || len(b.schedule) == 0 {
		return mle.GiveUp
	}
	usedAll := b.attempt >= int(b.msg.Timeout.RetransMax)
	d := mle.GiveUp
	if s.receiver != nil {
		d = s.receiver.HandleTimeout(b.msg, usedAll)
	}
	if cur, ok := s.buffers[id]; !ok || cur != b {
		return d
	}
	if d == mle.Retry && !usedAll {
		b.attempt++
		s.transmit(b)
		b.deadline = s.now.Add(b.schedule[b.attempt])
		return d
	}
	delete(s.buffers, id)
	return d
}

// AfterFunc runs fn once the virtual clock has advanced by d.
func (s *Service) AfterFunc(d time.Duration, fn func()) {
	s.timerSeq++
	s.timers = append(s.timers, timer{seq: s.timerSeq, at: s.now.Add(d), fn: fn})
}

// Advance moves the clock forward by d, firing due retransmission
// timeouts and timers in deadline order.
func (s *Service) Advance(d time.Duration) {
	end := s.now.Add(d)
	for {
		at, fire, ok := s.nextDue(end)
		if !ok {
			break
		}
		if at.After(s.now) {
			s.now = at
		}
		fire()
	}
	s.now = end
}

// NextDeadline returns the earliest pending timeout or timer.
func (s *Service) NextDeadline() (time.Time, bool) {
	at, _, ok := s.nextDue(time.Time{})
	return at, ok
}

// nextDue finds the earliest event due by end. A zero end means no limit.
func (s *Service) nextDue(end time.Time) (time.Time, func(), bool) {
	type due struct {
		at  time.Time
		key uint64
		fn  func()
	}
	var all []due
	for id, b := range s.buffers {
		if !b.sent || len(b.schedule) == 0 {
			continue
		}
		all = append(all, due{at: b.deadline, key: uint64(id), fn: func() { s.FireTimeout(id) }})
	}
	for _, t := range s.timers {
		all = append(all, due{at: t.at, key: 1<<32 + t.seq, fn: func() {
			s.removeTimer(t.seq)
			t.fn()
		}})
	}
	if len(all) == 0 {
		return time.Time{}, nil, false
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].at.Equal(all[j].at) {
			return all[i].at.Before(all[j].at)
		}
		return all[i].key < all[j].key
	})
	first := all[0]
	if !end.IsZero() && first.at.After(end) {
		return time.Time{}, nil, false
	}
	return first.at, first.fn, true
}

func (s *Service) removeTimer(seq uint64) {
	for i, t := range s.timers {
		if t.seq == seq {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return
		}
	}
}
