package reactor

import (
	"errors"
	"math"
	"time"
)

// Forever, passed to RunOnce, blocks until at least one descriptor is ready
// or Stop is called.
const Forever time.Duration = -1

// Event is one entry of the ready list: a descriptor and the directions the
// facility reported for it.
type Event struct {
	FD    int
	Ready Interest
}

// errNotWatched is returned by poller.remove when the facility no longer
// knows the descriptor (it was closed, or never added).
var errNotWatched = errors.New("reactor: fd not watched by facility")

// poller abstracts the OS readiness facility.
type poller interface {
	// add starts watching fd for mask. Fails if fd is already watched.
	add(fd int, mask Interest) error
	// modify replaces the watched mask of an already watched fd.
	modify(fd int, mask Interest) error
	// remove stops watching fd.
	remove(fd int) error
	// wait blocks for up to timeout (negative blocks indefinitely), copying
	// ready entries into events, and returns the number copied. Interruption
	// by a signal reports zero entries and no error. Wake-ups are consumed
	// internally and never reported.
	wait(events []Event, timeout time.Duration) (int, error)
	// wake makes an in-progress or the next wait return promptly.
	// Safe to call from any goroutine.
	wake() error
	// close releases the facility.
	close() error
}

// pollerFactory constructs a poller with room for maxEvents ready entries.
type pollerFactory func(maxEvents int) (poller, error)

// timeoutMillis converts a timeout to the millisecond form used by the
// facility. Negative means block indefinitely. Positive values are rounded
// up, so a sub-millisecond timeout still blocks instead of spinning.
func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	if timeout == 0 {
		return 0
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}
