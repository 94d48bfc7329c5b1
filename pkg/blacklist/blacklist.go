// Package blacklist keeps a short-lived denylist of parents that failed an
// attach exchange. Each failure holds the address down for a period that
// doubles on repeated failures; a success removes it.
package blacklist

import (
	"time"

	"github.com/mash-protocol/mle-go/pkg/backoff"
	"github.com/mash-protocol/mle-go/pkg/mle"
)

// Defaults.
const (
	DefaultHoldDown    = 4 * time.Second
	DefaultMaxHoldDown = 300 * time.Second
	DefaultCapacity    = 16

	// Entries are purged once they have been released for this long.
	purgeAfter = 2 * DefaultMaxHoldDown
)

// Config configures a List.
type Config struct {
	HoldDown    time.Duration
	MaxHoldDown time.Duration
	Capacity    int
	Now         func() time.Time
}

type entry struct {
	until time.Time
	hold  *backoff.Backoff
}

// List is the denylist. It is not safe for concurrent use.
type List struct {
	cfg     Config
	entries map[mle.ExtAddress]*entry
}

// New creates a List.
func New(cfg Config) *List {
	if cfg.HoldDown <= 0 {
		cfg.HoldDown = DefaultHoldDown
	}
	if cfg.MaxHoldDown <= 0 {
		cfg.MaxHoldDown = DefaultMaxHoldDown
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &List{cfg: cfg, entries: make(map[mle.ExtAddress]*entry)}
}

// Reject reports whether addr is currently held down.
func (l *List) Reject(addr mle.ExtAddress) bool {
	e, ok := l.entries[addr]
	if !ok {
		return false
	}
	return l.cfg.Now().Before(e.until)
}

// Update records the outcome of an exchange with addr.
func (l *List) Update(addr mle.ExtAddress, success bool) {
	if success {
		delete(l.entries, addr)
		return
	}

	now := l.cfg.Now()
	e, ok := l.entries[addr]
	if !ok {
		if len(l.entries) >= l.cfg.Capacity {
			l.purge(now)
			if len(l.entries) >= l.cfg.Capacity {
				return
			}
		}
		e = &entry{hold: backoff.New(backoff.Config{
			Initial: l.cfg.HoldDown,
			Max:     l.cfg.MaxHoldDown,
		})}
		l.entries[addr] = e
	}
	e.until = now.Add(e.hold.Next())
}

// HoldDown returns the remaining hold-down of addr.
func (l *List) HoldDown(addr mle.ExtAddress) time.Duration {
	e, ok := l.entries[addr]
	if !ok {
		return 0
	}
	if d := e.until.Sub(l.cfg.Now()); d > 0 {
		return d
	}
	return 0
}

// Clear removes all entries.
func (l *List) Clear() {
	l.entries = make(map[mle.ExtAddress]*entry)
}

// Len returns the number of tracked addresses, held down or not.
func (l *List) Len() int {
	return len(l.entries)
}

func (l *List) purge(now time.Time) {
	for addr, e := range l.entries {
		if now.Sub(e.until) > purgeAfter {
			delete(l.entries, addr)
		}
	}
}
