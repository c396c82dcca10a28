package resilience

import (
	"sync"
	"time"
)

// State is the circuit breaker state for one dependency.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
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

// Breaker tracks the health of a single dependency. All transitions happen
// under one mutex; the breaker is shared by every caller of that dependency
// and by nothing else.
type Breaker struct {
	mu          sync.Mutex
	state       State
	gen         uint64
	failures    int
	windowStart time.Time
	openedAt    time.Time

	threshold int
	window    time.Duration
	coolDown  time.Duration

	now           func() time.Time
	onStateChange func(State)
}

// NewBreaker creates a closed breaker. threshold is the number of transient
// failures within window that opens the circuit; coolDown is how long the
// circuit stays open before admitting a half-open probe.
func NewBreaker(threshold int, window, coolDown time.Duration) *Breaker {
	return &Breaker{
		state:     StateClosed,
		threshold: threshold,
		window:    window,
		coolDown:  coolDown,
		now:       time.Now,
	}
}

// OnStateChange registers a hook invoked (outside the lock is not guaranteed;
// keep it cheap) on every state transition.
func (b *Breaker) OnStateChange(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Allow reports whether a call may proceed and hands out the generation the
// caller must report its outcome with. The generation changes on every state
// transition, so outcomes from a previous state are ignored. When the circuit
// is open and the cool-down has elapsed, the calling goroutine becomes the
// single half-open probe; concurrent callers keep failing fast until the
// probe resolves.
func (b *Breaker) Allow() (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return b.gen, true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.coolDown {
			b.transition(StateHalfOpen)
			return b.gen, true
		}
		return b.gen, false
	case StateHalfOpen:
		// A probe is already in flight.
		return b.gen, false
	}
	return b.gen, false
}

// Success records a healthy response. It closes a half-open circuit and
// clears the failure window. Outcomes from a stale generation are dropped so
// a slow call admitted before the circuit opened cannot cut the cool-down
// short.
func (b *Breaker) Success(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.gen {
		return
	}

	b.failures = 0
	b.windowStart = time.Time{}
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// Failure records a transient failure. Crossing the threshold within the
// rolling window opens the circuit; a failed half-open probe re-opens it and
// restarts the cool-down. Stale generations are dropped.
func (b *Breaker) Failure(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.gen {
		return
	}

	now := b.now()

	if b.state == StateHalfOpen {
		b.openedAt = now
		b.failures = 0
		b.transition(StateOpen)
		return
	}

	if b.windowStart.IsZero() || now.Sub(b.windowStart) > b.window {
		b.windowStart = now
		b.failures = 0
	}
	b.failures++

	if b.failures >= b.threshold {
		b.openedAt = now
		b.failures = 0
		b.transition(StateOpen)
	}
}

// Abandon resolves a probe whose caller went away without an answer from the
// dependency. The half-open circuit re-opens and the cool-down restarts so
// the next caller past it becomes a fresh probe. For any other generation or
// state this is a no-op.
func (b *Breaker) Abandon(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.gen || b.state != StateHalfOpen {
		return
	}

	b.openedAt = b.now()
	b.transition(StateOpen)
}

// State returns the current state without mutating it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(next State) {
	b.state = next
	b.gen++
	if b.onStateChange != nil {
		b.onStateChange(next)
	}
}
