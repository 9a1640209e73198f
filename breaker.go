package tuyalan

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker guarding a Device's
// reconnect path (SPEC_FULL.md §4.4), independent of the per-request
// RetryPolicy: retry handles transient failure of a single operation;
// the breaker handles sustained failure of the device itself.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive reconnect failures
	// that trip the breaker open.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before allowing one
	// half-open probe attempt.
	OpenTimeout time.Duration
}

// DefaultBreakerConfig matches SPEC_FULL.md §6's configuration defaults.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	OpenTimeout:      60 * time.Second,
}

// connectionBreaker wraps gobreaker around a Connection's dial+startup
// step so a long-dead device doesn't get hammered with reconnect
// attempts every reconnectDelay tick.
type connectionBreaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

func newConnectionBreaker(name string, cfg BreakerConfig) *connectionBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &connectionBreaker{cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

// call runs fn through the breaker, translating gobreaker's own
// ErrOpenState into this package's ErrBreakerOpen.
func (b *connectionBreaker) call(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBreakerOpen
	}
	return err
}

// state exposes the breaker's current gobreaker.State, for callers that
// want to observe closed/open/half-open transitions (SPEC_FULL.md §5).
func (b *connectionBreaker) state() gobreaker.State {
	return b.cb.State()
}
