// Package backoff computes exponential delays for attach restarts and MLE
// retransmission schedules.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// Defaults for attach restarts driven by the supervisor.
const (
	DefaultInitial    = 1 * time.Second
	DefaultMax        = 120 * time.Second
	DefaultMultiplier = 2.0

	// DefaultJitter is the maximum jitter as a fraction of the base delay.
	DefaultJitter = 0.25
)

// Config customizes a Backoff. Zero durations and multiplier take the
// defaults; a zero Jitter disables jitter.
type Config struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64

	// Seed makes jitter reproducible when non-zero.
	Seed int64
}

// Backoff calculates exponential delays with optional jitter.
type Backoff struct {
	mu sync.Mutex

	current    time.Duration
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	attempts   int

	rng *rand.Rand
}

// New creates a Backoff.
func New(cfg Config) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultInitial
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMax
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next delay (with jitter) and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.addJitter(b.current)
	b.attempts++
	b.current = step(b.current, b.multiplier, b.max)
	return delay
}

// Peek returns the current delay (with jitter) without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addJitter(b.current)
}

// Reset returns to the initial delay. Call after a successful attach.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the current base delay (without jitter).
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.jitter*b.rng.Float64())
}

func step(d time.Duration, mult float64, max time.Duration) time.Duration {
	next := time.Duration(float64(d) * mult)
	if next > max {
		next = max
	}
	return next
}

// Retransmissions returns the timeouts of an MLE exchange: the first
// transmission waits init, each retransmission doubles it up to max. The
// result has retries+1 entries; the last one expires the exchange.
func Retransmissions(init, max time.Duration, retries uint8) []time.Duration {
	if init <= 0 {
		return nil
	}
	if max < init {
		max = init
	}
	out := make([]time.Duration, 0, int(retries)+1)
	d := init
	for i := 0; i <= int(retries); i++ {
		out = append(out, d)
		d = step(d, 2, max)
	}
	return out
}
