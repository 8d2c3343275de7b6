package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logx "tubefarm/pkg/logx"
)

// ErrCircuitOpen is returned by Breaker.Do while the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
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

// Breaker is a consecutive-failure circuit breaker for one named operation.
//
//   - Closed: calls pass through; failures increment a counter.
//   - Open (counter reached Threshold): calls fast-fail with ErrCircuitOpen
//     until the cooldown elapses.
//   - Half-open (cooldown elapsed): the next call probes the dependency;
//     success closes the circuit, failure re-opens it for another cooldown.
//
// It is safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	name      string
	threshold int
	cooldown  time.Duration
	log       logx.Logger

	state       BreakerState
	fails       int
	nextAttempt time.Time
}

func NewBreaker(name string, threshold int, cooldown time.Duration, log logx.Logger) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown, log: log}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs op through the breaker.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := op(ctx)
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if time.Now().Before(b.nextAttempt) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
	}
	b.state = StateHalfOpen
	if !b.log.IsZero() {
		b.log.Info("circuit half-open", logx.String("op", b.name))
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == StateHalfOpen && !b.log.IsZero() {
			b.log.Info("circuit closed", logx.String("op", b.name))
		}
		b.state = StateClosed
		b.fails = 0
		return
	}

	b.fails++
	if b.state == StateHalfOpen || b.fails >= b.threshold {
		b.state = StateOpen
		b.nextAttempt = time.Now().Add(b.cooldown)
		if !b.log.IsZero() {
			b.log.Warn("circuit opened",
				logx.String("op", b.name),
				logx.Int("fails", b.fails),
				logx.Duration("cooldown", b.cooldown),
			)
		}
	}
}
