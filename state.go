package reactor

import (
	"sync/atomic"
)

// LoopState represents the current state of the loop.
//
// State Machine:
//
//	StateIdle → StateRunning      [RunOnce() via CAS]
//	StateRunning → StateIdle      [RunOnce() returns]
//	StateIdle → StateClosed       [Close()]
//	StateRunning → StateClosing   [Close() from within a handler]
//	StateClosing → StateClosed    [RunOnce() returns, resources released]
//	StateClosed → (terminal)
type LoopState uint32

const (
	// StateIdle indicates the loop is open and no cycle is in progress.
	StateIdle LoopState = iota
	// StateRunning indicates a RunOnce cycle is waiting or dispatching.
	StateRunning
	// StateClosing indicates Close was called during a cycle; resources are
	// released when that cycle returns.
	StateClosing
	// StateClosed indicates all resources have been released.
	StateClosed
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// loopState is a small CAS state machine. Loads are atomic so that Stop,
// State and Metrics may be called from other goroutines.
type loopState struct {
	v atomic.Uint32
}

func (s *loopState) Load() LoopState {
	return LoopState(s.v.Load())
}

func (s *loopState) Store(state LoopState) {
	s.v.Store(uint32(state))
}

func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// IsOpen reports whether registration calls are accepted.
func (s *loopState) IsOpen() bool {
	state := s.Load()
	return state == StateIdle || state == StateRunning
}
