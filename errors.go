package reactor

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrOutOfRange is returned when a file descriptor falls outside [0, capacity).
	ErrOutOfRange = errors.New("reactor: fd out of range")

	// ErrResourceExhausted is returned by New when the table, the ready buffer,
	// or the readiness facility could not be acquired.
	ErrResourceExhausted = errors.New("reactor: resource exhausted")

	// ErrRegistrationFailed matches any [*RegistrationError].
	ErrRegistrationFailed = errors.New("reactor: registration failed")

	// ErrFacility matches any [*FacilityError].
	ErrFacility = errors.New("reactor: readiness facility failed")

	// ErrCancelled is returned by RunOnce when a Stop request was observed.
	// It is a control-flow signal, not a failure.
	ErrCancelled = errors.New("reactor: cancelled")

	// ErrLoopClosed is returned when operations are attempted on a closed loop.
	ErrLoopClosed = errors.New("reactor: loop has been closed")

	// ErrLoopRunning is returned when RunOnce is entered concurrently from a
	// second goroutine, which violates the single-owner precondition.
	ErrLoopRunning = errors.New("reactor: loop is already running")

	// ErrReentrantRun is returned when RunOnce or Run is called from within a handler.
	ErrReentrantRun = errors.New("reactor: cannot run the loop from within a handler")

	// ErrInvalidCapacity is returned by New for a non-positive capacity.
	ErrInvalidCapacity = errors.New("reactor: capacity must be positive")

	// ErrInvalidInterest is returned for an empty mask on AddInterest, or for
	// bits other than Readable and Writable.
	ErrInvalidInterest = errors.New("reactor: invalid interest mask")

	// ErrInvalidMaxEvents is returned by WithMaxEvents for a non-positive size.
	ErrInvalidMaxEvents = errors.New("reactor: max events must be positive")

	// ErrUnsupportedPlatform is wrapped by New on platforms without epoll.
	ErrUnsupportedPlatform = errors.New("reactor: this platform is not supported")
)

// RegistrationError reports a failed add, modify, or delete on the readiness
// facility. The table is left exactly as it was before the call.
type RegistrationError struct {
	Cause error
	Op    string
	FD    int
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("reactor: %s fd %d failed", e.Op, e.FD)
	}
	return fmt.Sprintf("reactor: %s fd %d failed: %v", e.Op, e.FD, e.Cause)
}

// Unwrap returns the underlying cause (typically a unix.Errno).
func (e *RegistrationError) Unwrap() error {
	return e.Cause
}

// Is matches [ErrRegistrationFailed].
func (e *RegistrationError) Is(target error) bool {
	return target == ErrRegistrationFailed
}

// FacilityError reports a failure of the wait step itself. It is fatal to the
// loop: callers should Close it and, if desired, create a new one.
type FacilityError struct {
	Cause error
	Op    string
}

// Error implements the error interface.
func (e *FacilityError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("reactor: %s failed", e.Op)
	}
	return fmt.Sprintf("reactor: %s failed: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *FacilityError) Unwrap() error {
	return e.Cause
}

// Is matches [ErrFacility].
func (e *FacilityError) Is(target error) bool {
	return target == ErrFacility
}

func outOfRange(fd, capacity int) error {
	return fmt.Errorf("%w: fd %d (capacity %d)", ErrOutOfRange, fd, capacity)
}

func resourceExhausted(what string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrResourceExhausted, what)
	}
	return fmt.Errorf("%w: %s: %w", ErrResourceExhausted, what, cause)
}
