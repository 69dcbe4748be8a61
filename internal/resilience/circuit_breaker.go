package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
)

// ErrCircuitOpen is returned by Execute when the call was short-circuited.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation - requests pass through
	StateOpen                         // Circuit is open - requests fail immediately
	StateHalfOpen                     // Testing if service recovered - limited requests pass
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

type BreakerSettings struct {
	// WindowSize is the number of most recent outcomes considered.
	WindowSize int
	// MinCalls is the number of recorded outcomes needed before the rate is evaluated.
	MinCalls int
	// FailureRate in (0,1]; the circuit opens when the windowed rate reaches it.
	FailureRate float64
	// OpenDuration is how long the circuit stays open before allowing trials.
	OpenDuration time.Duration
	// HalfOpenCalls is the number of trial calls admitted while half-open.
	HalfOpenCalls int

	// IsFailure classifies an outcome. Defaults to domain.IsRetryable.
	IsFailure func(error) bool
	// OnStateChange is invoked under the breaker lock; keep it cheap.
	OnStateChange func(from, to CircuitState)
	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// CircuitBreaker tracks the failure ratio of one capability over a
// count-based rolling window.
type CircuitBreaker struct {
	settings BreakerSettings

	mu            sync.Mutex
	state         CircuitState
	window        []bool // true = failure
	next          int
	filled        int
	openedAt      time.Time
	halfOpenCalls int
	// generation changes on every transition
	generation uint64
}

func NewCircuitBreaker(s BreakerSettings) *CircuitBreaker {
	if s.WindowSize < 1 {
		s.WindowSize = 1
	}
	if s.MinCalls < 1 {
		s.MinCalls = 1
	}
	if s.MinCalls > s.WindowSize {
		s.MinCalls = s.WindowSize
	}
	if s.HalfOpenCalls < 1 {
		s.HalfOpenCalls = 1
	}
	if s.IsFailure == nil {
		s.IsFailure = domain.IsRetryable
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return &CircuitBreaker{
		settings: s,
		state:    StateClosed,
		window:   make([]bool, s.WindowSize),
	}
}

// Execute runs fn if the circuit admits the call. A short-circuited call
// returns ErrCircuitOpen without invoking fn. When ctx ends before fn
// returns, the outcome is not recorded: the caller left, the backend did
// not necessarily fail.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	gen, err := cb.acquire()
	if err != nil {
		return err
	}

	err = fn(ctx)
	if ctx.Err() != nil {
		cb.release(gen)
		return err
	}
	cb.record(gen, cb.settings.IsFailure(err))
	return err
}

// acquire admits a call and returns the generation it belongs to.
func (cb *CircuitBreaker) acquire() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.updateState()

	switch cb.state {
	case StateOpen:
		return 0, ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.settings.HalfOpenCalls {
			return 0, ErrCircuitOpen
		}
		cb.halfOpenCalls++
	}
	return cb.generation, nil
}

// release returns an unrecorded half-open trial slot.
func (cb *CircuitBreaker) release(gen uint64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if gen == cb.generation && cb.state == StateHalfOpen && cb.halfOpenCalls > 0 {
		cb.halfOpenCalls--
	}
}

// updateState moves an expired open circuit to half-open.
func (cb *CircuitBreaker) updateState() {
	if cb.state == StateOpen && cb.settings.Now().Sub(cb.openedAt) >= cb.settings.OpenDuration {
		cb.transition(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) record(gen uint64, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// admitted under an earlier state
	if gen != cb.generation {
		return
	}

	switch cb.state {
	case StateHalfOpen:
		if failed {
			cb.transition(StateOpen)
		} else {
			cb.transition(StateClosed)
		}
	case StateClosed:
		cb.window[cb.next] = failed
		cb.next = (cb.next + 1) % len(cb.window)
		if cb.filled < len(cb.window) {
			cb.filled++
		}
		if cb.filled >= cb.settings.MinCalls && cb.failureRate() >= cb.settings.FailureRate {
			cb.transition(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) failureRate() float64 {
	failures := 0
	for i := 0; i < cb.filled; i++ {
		if cb.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(cb.filled)
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.generation++
	cb.halfOpenCalls = 0

	switch to {
	case StateOpen:
		cb.openedAt = cb.settings.Now()
	case StateClosed:
		cb.resetWindow()
	}

	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(from, to)
	}
}

func (cb *CircuitBreaker) resetWindow() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.next = 0
	cb.filled = 0
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.updateState()
	return cb.state
}
