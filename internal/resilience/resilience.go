package resilience

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"
)

var (
	// ErrCircuitOpen is returned without invoking the dependency while its
	// circuit is open.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrDependencyTimeout marks an attempt that exceeded the per-call timeout.
	ErrDependencyTimeout = errors.New("dependency timeout")

	// ErrDependencyUnavailable is returned once the retry budget is exhausted.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Config tunes retry and circuit-breaker behavior for one dependency.
type Config struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	OpTimeout        time.Duration
	FailureThreshold int
	Window           time.Duration
	CoolDown         time.Duration
}

// DefaultConfig mirrors the production defaults: three attempts with
// 50ms..1s backoff, 2s per-call timeout, circuit opens after 5 transient
// failures within a minute and cools down for 10s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialBackoff:   50 * time.Millisecond,
		MaxBackoff:       time.Second,
		OpTimeout:        2 * time.Second,
		FailureThreshold: 5,
		Window:           time.Minute,
		CoolDown:         10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = d.OpTimeout
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.CoolDown <= 0 {
		c.CoolDown = d.CoolDown
	}
	return c
}

// Executor wraps calls against one named dependency with retry-with-backoff
// and a circuit breaker. Transient failures are retried; everything else is
// returned as-is on the first attempt.
type Executor struct {
	name    string
	cfg     Config
	breaker *Breaker

	// sleep is swapped out in tests.
	sleep func(context.Context, time.Duration) error
}

// NewExecutor creates an executor for the named dependency.
func NewExecutor(name string, cfg Config) *Executor {
	cfg = cfg.withDefaults()
	e := &Executor{
		name:    name,
		cfg:     cfg,
		breaker: NewBreaker(cfg.FailureThreshold, cfg.Window, cfg.CoolDown),
		sleep:   sleepCtx,
	}
	e.breaker.OnStateChange(func(s State) {
		log.Printf("circuit %q: %s", name, s)
	})
	return e
}

// Breaker exposes the underlying circuit, e.g. for health reporting.
func (e *Executor) Breaker() *Breaker { return e.breaker }

// Name returns the dependency name.
func (e *Executor) Name() string { return e.name }

// Execute runs op with retry and circuit-breaker protection. Every attempt
// gets its own timeout derived from ctx so a hung dependency cannot consume
// the whole retry budget.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	gen, ok := e.breaker.Allow()
	if !ok {
		return fmt.Errorf("%s: %w", e.name, ErrCircuitOpen)
	}

	backoff := e.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, jitter(backoff)); err != nil {
				e.breaker.Abandon(gen)
				return err
			}
			backoff *= 2
			if backoff > e.cfg.MaxBackoff {
				backoff = e.cfg.MaxBackoff
			}
		}

		opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
		err := op(opCtx)
		if err != nil && opCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = fmt.Errorf("%s: %w", e.name, ErrDependencyTimeout)
		}
		cancel()

		if err == nil {
			e.breaker.Success(gen)
			return nil
		}
		if ctx.Err() != nil {
			// Cancellation is not a dependency outcome; it only resolves
			// an in-flight probe.
			e.breaker.Abandon(gen)
			return ctx.Err()
		}
		if !IsTransient(err) {
			// The dependency answered; the call itself was rejected.
			e.breaker.Success(gen)
			return err
		}

		lastErr = err
		e.breaker.Failure(gen)
		if e.breaker.State() == StateOpen {
			return fmt.Errorf("%s: %w: %v", e.name, ErrCircuitOpen, lastErr)
		}
	}

	return fmt.Errorf("%s: %w: %v", e.name, ErrDependencyUnavailable, lastErr)
}

// Do runs an operation returning a value through the executor.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	// Equal jitter: half fixed, half random.
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
