package gateway

import "time"

// fakeTracker is a minimal HealthTracker double for tests in this
// package that only need a backend's health to report a fixed state.
type fakeTracker struct {
	healthy bool
	state   CircuitState
}

func newFakeTracker(healthy bool) *fakeTracker {
	state := CircuitClosed
	if !healthy {
		state = CircuitOpen
	}
	return &fakeTracker{healthy: healthy, state: state}
}

func (f *fakeTracker) RecordSuccess()        { f.healthy = true; f.state = CircuitClosed }
func (f *fakeTracker) RecordFailure(_ string) { f.healthy = false }
func (f *fakeTracker) CanAttempt() bool       { return f.state != CircuitOpen }
func (f *fakeTracker) State() CircuitState    { return f.state }
func (f *fakeTracker) Snapshot() HealthState {
	return HealthState{Healthy: f.healthy, CircuitState: f.state, LastCheck: time.Now()}
}
