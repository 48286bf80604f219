// -----------------------------------------------------------------------
// Circuit Breaker - per-component fail-fast wrapper over gobreaker
// -----------------------------------------------------------------------

package recovery

import (
	"time"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"
)

// Breaker wraps a component's external calls in a circuit breaker.
// While the circuit is open calls return (false, nil) immediately
// instead of an error, so callers can branch on availability.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger arbor.ILogger
}

// NewBreaker builds a breaker that opens after failureThreshold
// consecutive failures and probes again after recoveryTimeout.
func NewBreaker(component string, failureThreshold uint32, recoveryTimeout time.Duration, logger arbor.ILogger) *Breaker {
	settings := gobreaker.Settings{
		Name:    component,
		Timeout: recoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn().
					Str("component", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state change")
			}
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings), logger: logger}
}

// Call runs fn through the breaker. Returns executed=false with a nil
// error while the circuit is open; otherwise executed=true and fn's
// error.
func (b *Breaker) Call(fn func() error) (executed bool, err error) {
	_, cbErr := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if cbErr == gobreaker.ErrOpenState || cbErr == gobreaker.ErrTooManyRequests {
		return false, nil
	}
	return true, cbErr
}

// State exposes the breaker state for health reporting.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
