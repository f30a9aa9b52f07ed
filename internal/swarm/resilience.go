package swarm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// BreakerConfig configures the circuit breaker around an executor.
type BreakerConfig struct {
	// MaxRequests is how many test requests pass in half-open state.
	MaxRequests uint32
	// Timeout is how long the breaker stays open before testing recovery.
	Timeout time.Duration
	// ConsecutiveFailures is the trip threshold.
	ConsecutiveFailures uint32
	// OnStateChange, if set, is notified on every breaker transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns the standard breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         3,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// BreakerExecutor wraps an Executor with a circuit breaker so a
// persistently failing agent backend sheds load quickly instead of burning
// every queued task's retry budget against a dead backend.
type BreakerExecutor struct {
	inner Executor
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerExecutor wraps inner with a named circuit breaker.
func NewBreakerExecutor(name string, inner Executor, cfg BreakerConfig) *BreakerExecutor {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    0, // Don't clear counts automatically
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("[swarm] circuit breaker %q: %s -> %s", name, from, to)
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		},
		IsSuccessful: func(err error) bool {
			// Don't count task cancellation as executor failure
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	return &BreakerExecutor{inner: inner, cb: cb}
}

// Execute runs the task through the circuit breaker. While the breaker is
// open every call fails fast without reaching the inner executor.
func (b *BreakerExecutor) Execute(ctx context.Context, task *models.Task) (*models.ExecutionResult, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Execute(ctx, task)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("executor circuit open: %w", err)
		}
		return nil, err
	}

	res, ok := result.(*models.ExecutionResult)
	if !ok {
		return nil, fmt.Errorf("executor returned unexpected result type %T", result)
	}
	return res, nil
}

// State returns the breaker's current state.
func (b *BreakerExecutor) State() gobreaker.State {
	return b.cb.State()
}
