// Package reactor provides a minimal, single-threaded I/O readiness reactor
// for Go: a fixed-capacity table mapping file descriptors to read and write
// handlers, and a [Loop] that waits on the platform readiness facility and
// dispatches those handlers when descriptors become readable or writable.
//
// # Architecture
//
// A [Loop] owns three things: the descriptor table (sized once by [New] and
// indexed directly by fd), the readiness facility (epoll on Linux), and a
// pre-allocated ready buffer reused by every cycle. [Loop.AddInterest] and
// [Loop.RemoveInterest] keep the table and the facility in agreement, and a
// failed facility call never leaves the table changed.
//
// Each [Loop.RunOnce] is one cycle: wait, snapshot the ready list, then for
// every ready descriptor invoke the read handler and then the write handler,
// each filtered by the descriptor's current interest. [Loop.Run] repeats
// cycles until [Loop.Stop] is called or its context is done.
//
// Only Linux (epoll) is implemented. On other platforms New fails with
// [ErrUnsupportedPlatform].
//
// Handler data is typed: a Loop[C] passes a value of type C to its handlers,
// so no casts are required. Use struct{} when closures are sufficient.
//
// # Thread Safety
//
// A Loop has a single owner goroutine:
//   - [Loop.AddInterest], [Loop.RemoveInterest], [Loop.RunOnce], [Loop.Run]
//     and [Loop.Close] must only be called by the owner, or by handlers
//   - [Loop.Stop] is safe to call from any goroutine
//   - [Loop.State] and [Loop.Metrics] are safe to call from any goroutine
//
// Handlers run synchronously on the owner goroutine and must not block.
//
// # Closing Descriptors
//
// Always call RemoveInterest before closing a file descriptor. Closing first
// leaves the table holding a record the kernel no longer watches:
//   - RemoveInterest still succeeds, since the EBADF or ENOENT on delete is
//     absorbed and the record dropped
//   - until then, AddInterest for the same number (typically a new descriptor
//     that reused it) modifies instead of adding, and fails with ENOENT
//   - a dup'd descriptor keeps the old registration alive in the kernel, and
//     its readiness is still delivered to the old handlers
//
// Within a cycle, readiness already queued for a descriptor is dropped once
// the descriptor is registered again, so a reused number never receives the
// previous owner's events.
//
// # Usage
//
//	loop, err := reactor.New[*conn](1024)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	if err := loop.AddInterest(fd, reactor.Readable, onReadable, c); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := loop.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Types
//
// Sentinel errors are matched with [errors.Is]:
//   - [ErrOutOfRange]: fd outside [0, capacity)
//   - [ErrResourceExhausted]: New could not acquire the facility or memory
//   - [ErrCancelled]: a cycle observed a Stop request
//   - [ErrLoopClosed]: use after Close
//
// Facility failures are typed, and unwrap to the underlying errno:
//   - [RegistrationError]: add, modify or delete failed (matches [ErrRegistrationFailed])
//   - [FacilityError]: the wait itself failed (matches [ErrFacility])
package reactor
