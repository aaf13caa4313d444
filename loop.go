package reactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// MaxCapacity is the largest table New will allocate.
const MaxCapacity = 100000000 // 100M, enough for production with ulimit -n > 1M

// facility operation names, used in errors and logs
const (
	opAdd    = "add"
	opModify = "modify"
	opDelete = "delete"
	opWait   = "wait"
)

var loopIDCounter atomic.Uint64

// Loop is a single-threaded readiness reactor over a fixed-capacity table of
// descriptors. C is the type of the data passed to handlers.
//
// Exactly one goroutine owns a Loop: it alone may call New, AddInterest,
// RemoveInterest, Registration, RunOnce, Run and Close. Stop, State and
// Metrics may be called from any goroutine. There is no internal locking of
// the table; concurrent use by multiple owners is a precondition violation.
type Loop[C any] struct {
	// Prevent copying
	_ [0]func()

	table   *table[C]
	poller  poller
	logger  *logiface.Logger[logiface.Event]
	metrics *loopMetrics

	// ready is the snapshot of the facility's ready list, allocated once and
	// reused every cycle.
	ready []Event

	// wakeMu orders Stop against the release of the facility.
	wakeMu sync.Mutex

	state         loopState
	stopRequested atomic.Bool
	dispatching   atomic.Bool

	capacity int
	id       uint64
}

// New creates a loop able to hold registrations for descriptors in
// [0, capacity), and opens the readiness facility.
//
// Failure to acquire the facility is reported as [ErrResourceExhausted],
// wrapping the cause; anything acquired by the failed attempt is released.
func New[C any](capacity int, opts ...LoopOption) (*Loop[C], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if capacity > MaxCapacity {
		return nil, resourceExhausted(fmt.Sprintf("capacity %d exceeds %d", capacity, MaxCapacity), nil)
	}

	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	p, err := cfg.newPoller(cfg.maxEvents)
	if err != nil {
		return nil, resourceExhausted("readiness facility", err)
	}

	l := &Loop[C]{
		table:    newTable[C](capacity),
		poller:   p,
		logger:   cfg.logger,
		ready:    make([]Event, cfg.maxEvents),
		capacity: capacity,
		id:       loopIDCounter.Add(1),
	}
	if cfg.metricsEnabled {
		l.metrics = new(loopMetrics)
	}

	l.logCreated(capacity, cfg.maxEvents)

	return l, nil
}

// Capacity returns the fixed size of the descriptor table.
func (l *Loop[C]) Capacity() int {
	return l.capacity
}

// State returns the current lifecycle state.
func (l *Loop[C]) State() LoopState {
	return l.state.Load()
}

// Registered returns the number of descriptors with a non-empty interest mask.
func (l *Loop[C]) Registered() int {
	if !l.state.IsOpen() {
		return 0
	}
	return l.table.active
}

// Registration returns the current record for fd, which is inactive (empty
// mask) if nothing is registered.
func (l *Loop[C]) Registration(fd int) (Registration[C], error) {
	if !l.state.IsOpen() {
		return Registration[C]{}, ErrLoopClosed
	}
	return l.table.get(fd)
}

// Metrics returns a snapshot of runtime statistics, or nil unless the loop
// was created WithMetrics(true).
func (l *Loop[C]) Metrics() *Metrics {
	return l.metrics.snapshot()
}

// AddInterest registers interest in mask for fd.
//
// Interest is merged with any existing registration: adding Writable keeps a
// previous Readable interest and its handler. The handler becomes the handler
// of every direction in mask, and data replaces the descriptor's data for
// BOTH directions.
//
// The first registration of a descriptor adds it to the facility; later ones
// modify it. If the facility rejects the change, a [*RegistrationError] is
// returned and the table is left unchanged.
//
// Called from within a handler, the change applies from the next cycle.
func (l *Loop[C]) AddInterest(fd int, mask Interest, handler Handler[C], data C) error {
	if !l.state.IsOpen() {
		return ErrLoopClosed
	}
	if mask == 0 || mask&^validInterest != 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterest, mask)
	}

	current, err := l.table.get(fd)
	if err != nil {
		return err
	}

	merged := current.Mask | mask
	op := opAdd
	if current.Active() {
		op = opModify
		err = l.poller.modify(fd, merged)
	} else {
		err = l.poller.add(fd, merged)
	}
	if err != nil {
		regErr := &RegistrationError{Op: op, FD: fd, Cause: err}
		l.logRegistrationFailed(regErr, merged)
		return regErr
	}

	_ = l.table.setInterest(fd, mask, handler, data)
	l.logInterest(op, fd, merged)

	return nil
}

// RemoveInterest clears mask from the registration of fd. Once the mask is
// empty the descriptor is deleted from the facility and its record dropped;
// otherwise the facility is modified to watch what remains.
//
// Removing interest that is not registered is a no-op. If the facility
// reports the descriptor as already gone (closed before removal), the record
// is dropped and nil is returned.
func (l *Loop[C]) RemoveInterest(fd int, mask Interest) error {
	if !l.state.IsOpen() {
		return ErrLoopClosed
	}
	if mask&^validInterest != 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterest, mask)
	}

	current, err := l.table.get(fd)
	if err != nil {
		return err
	}

	remaining := current.Mask &^ mask
	if !current.Active() || remaining == current.Mask {
		return nil
	}

	op := opModify
	if remaining == 0 {
		op = opDelete
		err = l.poller.remove(fd)
		if errors.Is(err, errNotWatched) {
			err = nil
		}
	} else {
		err = l.poller.modify(fd, remaining)
	}
	if err != nil {
		regErr := &RegistrationError{Op: op, FD: fd, Cause: err}
		l.logRegistrationFailed(regErr, remaining)
		return regErr
	}

	_ = l.table.clearInterest(fd, mask)
	l.logInterest(op, fd, remaining)

	return nil
}

// RunOnce performs one dispatch cycle: it blocks until at least one
// registered descriptor is ready, the timeout elapses, or Stop is called, and
// then synchronously invokes the handlers of every ready descriptor.
//
// A negative timeout ([Forever]) blocks indefinitely; zero polls without
// blocking. It returns the number of handler invocations. A wait interrupted
// by a signal (EINTR) ends the cycle early with (0, nil), even with Forever;
// callers that need to block loop on RunOnce, as [Loop.Run] does.
//
// If a Stop request is pending once the wait returns, nothing is dispatched
// and [ErrCancelled] is returned; the request is consumed.
//
// Ordering: the order across descriptors is whatever the facility reports,
// and is not deterministic. For a single descriptor the read handler always
// runs before the write handler.
//
// Handlers may call AddInterest and RemoveInterest (effective from the next
// cycle; entries already queued for a descriptor that lost its registration,
// or was registered again during the cycle, are skipped), Stop and Close. A panicking handler aborts the cycle and the
// panic propagates to the caller; the loop remains usable.
func (l *Loop[C]) RunOnce(timeout time.Duration) (int, error) {
	if !l.state.TryTransition(StateIdle, StateRunning) {
		switch l.state.Load() {
		case StateRunning:
			if l.dispatching.Load() {
				return 0, ErrReentrantRun
			}
			return 0, ErrLoopRunning
		default:
			return 0, ErrLoopClosed
		}
	}
	defer l.finishCycle()

	n, err := l.poller.wait(l.ready, timeout)
	if err != nil {
		facErr := &FacilityError{Op: opWait, Cause: err}
		l.logWaitFailed(facErr)
		return 0, facErr
	}

	if l.stopRequested.Swap(false) {
		l.metrics.recordCancelled()
		l.logCancelled()
		return 0, ErrCancelled
	}

	return l.dispatch(l.ready[:n]), nil
}

// dispatch invokes handlers for a snapshot of the ready list. The live table
// is consulted per entry, never iterated, so handlers may mutate it freely.
//
// An entry is stale if its descriptor lost its registration, or was
// registered again, after the wait returned. The second case covers a
// descriptor number reused by a handler during the cycle: the entry was
// reported for the previous owner and must not reach the new one.
func (l *Loop[C]) dispatch(events []Event) int {
	var start time.Time
	if l.metrics != nil {
		start = time.Now()
	}

	l.dispatching.Store(true)
	mark := l.table.generation()

	var dispatched, stale int
	for _, ev := range events {
		if l.state.Load() != StateRunning {
			break // closed by a handler
		}

		reg, err := l.table.get(ev.FD)
		if err != nil || !reg.Active() || l.table.changedSince(ev.FD, mark) {
			stale++
			l.logStale(ev)
			continue
		}

		if ev.Ready&reg.Mask&Readable != 0 && reg.Read != nil {
			reg.Read(ev.FD, reg.Data)
			dispatched++

			if l.state.Load() != StateRunning {
				break
			}
			// the read handler may have changed the registration
			if l.table.changedSince(ev.FD, mark) {
				continue
			}
			reg, _ = l.table.get(ev.FD)
		}

		if ev.Ready&reg.Mask&Writable != 0 && reg.Write != nil {
			reg.Write(ev.FD, reg.Data)
			dispatched++
		}
	}

	if l.metrics != nil {
		l.metrics.recordCycle(dispatched, stale, time.Since(start))
	}

	return dispatched
}

// finishCycle returns the loop to idle, or completes a Close requested by a
// handler during the cycle.
func (l *Loop[C]) finishCycle() {
	l.dispatching.Store(false)
	if l.state.TryTransition(StateRunning, StateIdle) {
		return
	}
	_ = l.release()
}

// Run drives RunOnce(Forever) until the loop is stopped, ctx is done, or the
// facility fails.
//
// It returns nil after Stop (or a Close from within a handler), ctx.Err()
// when ctx is done, and otherwise the error that ended the loop, e.g. a
// [*FacilityError].
func (l *Loop[C]) Run(ctx context.Context) error {
	if l.dispatching.Load() {
		return ErrReentrantRun
	}
	if !l.state.IsOpen() {
		return ErrLoopClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Wake the loop on ctx cancellation
	var wg sync.WaitGroup
	ctxDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			_ = l.Stop()
		case <-ctxDone:
		}
	}()
	defer func() {
		close(ctxDone)
		wg.Wait()
		// a cancel racing the return must not stop a later cycle
		l.stopRequested.Store(false)
	}()

	for {
		_, err := l.RunOnce(Forever)
		switch {
		case err == nil:
			if l.state.Load() == StateClosed {
				return nil
			}
		case errors.Is(err, ErrCancelled):
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return nil
		default:
			return err
		}
	}
}

// Stop requests that the in-progress cycle, or the next one, return
// [ErrCancelled] without dispatching. The request is one-shot: it is consumed
// by the cycle that observes it.
//
// Stop is safe to call from any goroutine, including signal handling
// goroutines.
func (l *Loop[C]) Stop() error {
	l.wakeMu.Lock()
	defer l.wakeMu.Unlock()

	if l.state.Load() == StateClosed {
		return ErrLoopClosed
	}

	l.stopRequested.Store(true)

	return l.poller.wake()
}

// Close releases the facility, the table and the ready buffer. Every later
// call returns [ErrLoopClosed], including a second Close.
//
// Called from within a handler, Close stops the dispatch of the current
// cycle, and the release happens when RunOnce returns. A blocked wait is
// woken, so the release also happens promptly if Close races a cycle.
func (l *Loop[C]) Close() error {
	for {
		switch l.state.Load() {
		case StateIdle:
			if l.state.TryTransition(StateIdle, StateClosing) {
				return l.release()
			}
		case StateRunning:
			if l.state.TryTransition(StateRunning, StateClosing) {
				return l.wakeClosing()
			}
		default:
			return ErrLoopClosed
		}
	}
}

// wakeClosing interrupts a wait that a Close left blocked. A release that
// already happened makes it a no-op.
func (l *Loop[C]) wakeClosing() error {
	l.wakeMu.Lock()
	defer l.wakeMu.Unlock()

	if l.state.Load() == StateClosed {
		return nil
	}
	return l.poller.wake()
}

// release performs the actual teardown, exactly once, from StateClosing.
func (l *Loop[C]) release() error {
	l.wakeMu.Lock()
	defer l.wakeMu.Unlock()

	err := l.poller.close()
	l.table.reset()
	l.ready = nil
	l.state.Store(StateClosed)

	l.logClosed(err)

	return err
}
