package vhci

import (
	"sync/atomic"
	"time"
)

// singletonState mirrors the five-state lifecycle of the original driver
// handle guard: UNINITIALIZED -> INITIALIZING -> INITIALIZED -> TERMINATING
// -> UNINITIALIZED, with a sticky ERROR absorbing state on init failure.
type singletonState uint32

const (
	stateUninitialized singletonState = iota
	stateInitializing
	stateInitialized
	stateTerminating
	stateError
)

// singletonGuard is an at-most-once initializer for a process-global
// resource, guarding a *Driver in this package but kept independent of
// that type so its state machine can be unit tested in isolation.
type singletonGuard struct {
	state atomic.Uint32
	value atomic.Pointer[any]
}

// spinWait is how long the guard sleeps between polls of a concurrent
// initializer's progress. Small and fixed: this lock is held only for the
// duration of opening a local device handle, never long enough to justify
// a condition variable's added complexity.
const spinWait = 50 * time.Microsecond

// tryInit runs init exactly once across however many goroutines call
// tryInit concurrently. The winner transitions UNINITIALIZED->INITIALIZING,
// runs init, and stores INITIALIZED on success or the sticky ERROR state on
// failure. Losers observing INITIALIZING spin until the winner leaves that
// state, then report ErrAlreadyInit (they did not race the winner, but must
// not double-run init). A prior failure always reports ErrAlreadyFailed.
func (g *singletonGuard) tryInit(init func() (any, error)) (any, error) {
	waited := false
	for {
		switch singletonState(g.state.Load()) {
		case stateUninitialized:
			if !g.state.CompareAndSwap(uint32(stateUninitialized), uint32(stateInitializing)) {
				continue // lost the race to another initializer; reread state
			}
			v, err := init()
			if err != nil {
				g.state.Store(uint32(stateError))
				return nil, err
			}
			g.value.Store(&v)
			g.state.Store(uint32(stateInitialized))
			return v, nil
		case stateInitializing:
			waited = true
			time.Sleep(spinWait)
			continue
		case stateInitialized:
			if waited {
				// Did not win the race to run init, even though it
				// eventually succeeded: must not double-init.
				return nil, ErrAlreadyInit
			}
			return nil, ErrAlreadyOpen
		case stateTerminating:
			time.Sleep(spinWait)
			continue
		case stateError:
			if waited {
				return nil, ErrAlreadyInit
			}
			return nil, ErrAlreadyFailed
		default:
			return nil, ErrAlreadyFailed
		}
	}
}

// terminate moves INITIALIZED -> TERMINATING, runs fin, then resets to
// UNINITIALIZED so a later process-lifetime open can succeed again. It is
// a no-op if the guard was never successfully initialized.
func (g *singletonGuard) terminate(fin func(v any)) {
	if !g.state.CompareAndSwap(uint32(stateInitialized), uint32(stateTerminating)) {
		return
	}
	if p := g.value.Swap(nil); p != nil {
		fin(*p)
	}
	g.state.Store(uint32(stateUninitialized))
}
