package reactor

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeOp records one call made against the facility.
type fakeOp struct {
	op   string
	fd   int
	mask Interest
}

// fakePoller is a scripted readiness facility. Each queued batch is returned
// by one wait call, regardless of what is watched, which allows stale and
// duplicate entries to be simulated on exact descriptors.
type fakePoller struct {
	mu      sync.Mutex
	watched map[int]Interest
	ops     []fakeOp
	batches [][]Event
	closed  bool
	waits   int

	addErr    error
	modifyErr error
	removeErr error
	waitErr   error
	closeErr  error

	// waitHook runs at the start of every wait, outside the lock
	waitHook func(p *fakePoller)

	wakeCh chan struct{}
}

func newFakePoller() *fakePoller {
	return &fakePoller{
		watched: make(map[int]Interest),
		wakeCh:  make(chan struct{}, 1),
	}
}

func (p *fakePoller) add(fd int, mask Interest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.addErr != nil {
		return p.addErr
	}
	if _, ok := p.watched[fd]; ok {
		return fmt.Errorf("fake: fd %d already watched", fd)
	}
	p.watched[fd] = mask
	p.ops = append(p.ops, fakeOp{opAdd, fd, mask})
	return nil
}

func (p *fakePoller) modify(fd int, mask Interest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.modifyErr != nil {
		return p.modifyErr
	}
	if _, ok := p.watched[fd]; !ok {
		return fmt.Errorf("fake: fd %d not watched", fd)
	}
	p.watched[fd] = mask
	p.ops = append(p.ops, fakeOp{opModify, fd, mask})
	return nil
}

func (p *fakePoller) remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removeErr != nil {
		return p.removeErr
	}
	if _, ok := p.watched[fd]; !ok {
		return errNotWatched
	}
	delete(p.watched, fd)
	p.ops = append(p.ops, fakeOp{opDelete, fd, 0})
	return nil
}

func (p *fakePoller) wait(events []Event, timeout time.Duration) (int, error) {
	p.mu.Lock()
	p.waits++
	hook := p.waitHook
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}

	p.mu.Lock()
	if p.waitErr != nil {
		err := p.waitErr
		p.mu.Unlock()
		return 0, err
	}
	if len(p.batches) != 0 {
		batch := p.batches[0]
		p.batches = p.batches[1:]
		p.mu.Unlock()
		return copy(events, batch), nil
	}
	p.mu.Unlock()

	switch {
	case timeout == 0:
		select {
		case <-p.wakeCh:
		default:
		}
	case timeout < 0:
		<-p.wakeCh
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-p.wakeCh:
		case <-timer.C:
		}
	}
	return 0, nil
}

func (p *fakePoller) wake() error {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

func (p *fakePoller) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

// push queues a batch of ready entries for the next wait.
func (p *fakePoller) push(events ...Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, events)
}

// forget drops fd from the watched set, as the kernel does when a descriptor
// is closed without being removed first.
func (p *fakePoller) forget(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.watched, fd)
}

func (p *fakePoller) recorded() []fakeOp {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fakeOp(nil), p.ops...)
}

func (p *fakePoller) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePoller) setErrors(fn func(p *fakePoller)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

// newTestLoop creates a loop over a fake facility. The loop is closed at the
// end of the test unless the test closed it.
func newTestLoop(t *testing.T, capacity int, opts ...LoopOption) (*Loop[int], *fakePoller) {
	t.Helper()
	fake := newFakePoller()
	opts = append(opts, withPollerFactory(func(int) (poller, error) {
		return fake, nil
	}))
	loop, err := New[int](capacity, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := loop.Close(); err != nil && !errors.Is(err, ErrLoopClosed) {
			t.Errorf("Close: %v", err)
		}
	})
	return loop, fake
}

// callRecorder collects handler invocations in order.
type callRecorder struct {
	calls []string
}

func (r *callRecorder) handler(name string) Handler[int] {
	return func(fd int, data int) {
		r.calls = append(r.calls, fmt.Sprintf("%s(%d,%d)", name, fd, data))
	}
}
