// Package health implements the per-backend health state machine: the
// counters described by spec component B (record_success/record_failure)
// fused with the circuit breaker policy of component C (should_open,
// should_attempt_half_open, should_close) into one lock-guarded type, the
// way the teacher's circuit breaker couples state and policy behind a
// single CanAttempt/RecordSuccess/RecordFailure API.
package health

import (
	"sync"
	"time"

	"github.com/stacklok/mcp-gateway/pkg/gateway"
)

// Tracker is a gateway.HealthTracker. Its constructor takes the backend's
// circuit breaker settings; every subsequent operation is a method call
// guarded by an internal mutex, so a single Tracker may be shared between
// the routed-invocation path and the health prober for the same backend.
type Tracker struct {
	mu sync.Mutex

	settings gateway.CircuitBreakerSettings
	now      func() time.Time

	healthy           bool
	errorCount        int
	lastError         string
	lastCheck         time.Time
	failureTimestamps []time.Time

	state             gateway.CircuitState
	lastStateChange   time.Time
	halfOpenInFlight  bool
	halfOpenSuccesses int
}

// NewTracker returns a Tracker in the CLOSED state.
func NewTracker(settings gateway.CircuitBreakerSettings) *Tracker {
	return newTrackerWithClock(settings, time.Now)
}

// newTrackerWithClock is used by tests that need deterministic timeouts.
func newTrackerWithClock(settings gateway.CircuitBreakerSettings, now func() time.Time) *Tracker {
	return &Tracker{
		settings:        settings,
		now:             now,
		healthy:         true,
		state:           gateway.CircuitClosed,
		lastStateChange: now(),
	}
}

// RecordSuccess implements gateway.HealthTracker: it resets all failure
// bookkeeping and, if a half-open test was in flight, closes the circuit
// once half_open_attempts consecutive successes have been observed.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.healthy = true
	t.lastCheck = t.now()
	t.lastError = ""

	switch t.state {
	case gateway.CircuitHalfOpen:
		t.errorCount = 0
		t.failureTimestamps = nil
		t.halfOpenSuccesses++
		if t.halfOpenSuccesses >= t.requiredHalfOpenAttempts() {
			t.closeLocked()
		}
		// Stay half-open, but the in-flight test has settled; allow the
		// next CanAttempt to issue another probe.
		t.halfOpenInFlight = false
	case gateway.CircuitOpen:
		// A success while open (e.g. a probe that raced the timeout
		// transition) still resets counters but does not itself close
		// an OPEN circuit; only a half-open success can do that.
		t.errorCount = 0
		t.failureTimestamps = nil
	default:
		t.closeLocked()
	}
}

// RecordFailure implements gateway.HealthTracker: it appends to the
// failure history and opens the circuit once error_count reaches
// failure_threshold. A failure observed while half-open immediately
// reopens the circuit and resets the timeout clock.
func (t *Tracker) RecordFailure(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.healthy = false
	t.lastCheck = t.now()
	t.lastError = message
	t.errorCount++
	t.failureTimestamps = append(t.failureTimestamps, t.lastCheck)

	if t.state == gateway.CircuitHalfOpen {
		t.openLocked()
		return
	}
	if t.state == gateway.CircuitClosed && t.errorCount >= t.settings.FailureThreshold {
		t.openLocked()
	}
}

// CanAttempt reports whether a caller may proceed. While CLOSED it always
// returns true. While OPEN it returns false until the breaker's timeout
// has elapsed since the last failure (or, when a success has since
// cleared the failure history, since the circuit opened), at which point the first caller
// flips the breaker to HALF_OPEN and is allowed through. While HALF_OPEN
// it admits one probe at a time: a caller is let through whenever no test
// is currently in flight, and blocked otherwise until the in-flight test
// settles via RecordSuccess or RecordFailure. This lets the
// half_open_attempts consecutive successes required to close accumulate
// across successive probes instead of being gated behind a single slot.
func (t *Tracker) CanAttempt() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case gateway.CircuitClosed:
		return true
	case gateway.CircuitHalfOpen:
		if t.halfOpenInFlight {
			return false
		}
		t.halfOpenInFlight = true
		return true
	case gateway.CircuitOpen:
		last := t.lastStateChange
		if n := len(t.failureTimestamps); n > 0 {
			last = t.failureTimestamps[n-1]
		}
		if t.now().Sub(last) < t.settings.Timeout {
			return false
		}
		t.state = gateway.CircuitHalfOpen
		t.lastStateChange = t.now()
		t.halfOpenInFlight = true
		t.halfOpenSuccesses = 0
		return true
	default:
		return false
	}
}

// State returns the current circuit state.
func (t *Tracker) State() gateway.CircuitState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Snapshot returns an immutable copy of the tracked health state.
func (t *Tracker) Snapshot() gateway.HealthState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gateway.HealthState{
		Healthy:           t.healthy,
		LastCheck:         t.lastCheck,
		ErrorCount:        t.errorCount,
		CircuitState:      t.state,
		LastError:         t.lastError,
		FailureTimestamps: append([]time.Time(nil), t.failureTimestamps...),
	}
}

// GetLastStateChange returns when the circuit last transitioned state.
func (t *Tracker) GetLastStateChange() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastStateChange
}

func (t *Tracker) requiredHalfOpenAttempts() int {
	if t.settings.HalfOpenAttempts < 1 {
		return 1
	}
	return t.settings.HalfOpenAttempts
}

// closeLocked and openLocked must be called with t.mu held.
func (t *Tracker) closeLocked() {
	t.state = gateway.CircuitClosed
	t.lastStateChange = t.now()
	t.errorCount = 0
	t.failureTimestamps = nil
	t.halfOpenInFlight = false
	t.halfOpenSuccesses = 0
}

func (t *Tracker) openLocked() {
	t.state = gateway.CircuitOpen
	t.lastStateChange = t.now()
	t.halfOpenInFlight = false
	t.halfOpenSuccesses = 0
}
