// Package resilience retries transient failures and guards remote
// dependencies (template downloads, the remote run store) with a circuit
// breaker.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// StateClosed lets calls through.
	StateClosed BreakerState = iota
	// StateOpen rejects calls until the reset timeout passes.
	StateOpen
	// StateHalfOpen lets probe calls through.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling through when the breaker is open.
var ErrCircuitOpen = eris.New("resilience: circuit breaker is open")

// BreakerConfig controls a Breaker.
type BreakerConfig struct {
	// Name identifies the guarded dependency in logs.
	Name string
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration
	// Probes successful half-open calls close the breaker again.
	Probes int
	// Counts decides whether an error counts as a failure. Nil counts all.
	Counts func(err error) bool
}

// DefaultBreakerConfig returns 5 failures, 30s reset and 1 probe.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		Probes:           1,
	}
}

// Breaker is a circuit breaker for a single dependency. It is safe for
// concurrent use.
type Breaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time

	now func() time.Time
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.Probes <= 0 {
		cfg.Probes = def.Probes
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Execute calls fn unless the breaker is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Guard(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Guard is Execute for calls that return a value.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := b.admit(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn(ctx)
	b.record(err)
	return v, err
}

// State reports the current state. An open breaker past its reset timeout
// reports half-open.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.moveTo(StateClosed)
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
		return ErrCircuitOpen
	}
	b.moveTo(StateHalfOpen)
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && (b.cfg.Counts == nil || b.cfg.Counts(err))
	if !failed {
		switch b.state {
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.cfg.Probes {
				b.moveTo(StateClosed)
			}
		case StateClosed:
			b.failures = 0
		}
		return
	}

	b.failures++
	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.moveTo(StateOpen)
		}
	case StateHalfOpen:
		b.moveTo(StateOpen)
	}
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(to BreakerState) {
	from := b.state
	b.state = to
	b.successes = 0
	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.failures = 0
	}
	if from != to {
		zap.L().Info("resilience: breaker state change",
			zap.String("breaker", b.cfg.Name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
}

// Breakers hands out one Breaker per key, e.g. per template host.
type Breakers struct {
	cfg BreakerConfig

	mu sync.Mutex
	m  map[string]*Breaker
}

// NewBreakers returns an empty set sharing cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, m: make(map[string]*Breaker)}
}

// Get returns the breaker for key, creating it on first use.
func (bs *Breakers) Get(key string) *Breaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.m[key]
	if !ok {
		cfg := bs.cfg
		cfg.Name = key
		b = NewBreaker(cfg)
		bs.m[key] = b
	}
	return b
}

// States snapshots every breaker's state.
func (bs *Breakers) States() map[string]BreakerState {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	out := make(map[string]BreakerState, len(bs.m))
	for k, b := range bs.m {
		out[k] = b.State()
	}
	return out
}
