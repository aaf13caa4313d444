//go:build linux

package reactor

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the epoll(7) readiness facility.
//
// The wake eventfd is part of the epoll set but never reported to the loop,
// and never occupies a slot in the loop's table.
type epollPoller struct {
	raw    []unix.EpollEvent // preallocated, reused by every wait
	epfd   int
	wakeFd int
}

var defaultPollerFactory pollerFactory = newEpollPoller

// newEpollPoller opens the epoll instance and its wake eventfd. On failure
// everything acquired so far is closed.
func newEpollPoller(maxEvents int) (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakeFd, err := createWakeFd()
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFd),
	}); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll_ctl wake fd: %w", err)
	}

	return &epollPoller{
		raw:    make([]unix.EpollEvent, maxEvents),
		epfd:   epfd,
		wakeFd: wakeFd,
	}, nil
}

func (p *epollPoller) add(fd int, mask Interest) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: interestToEpoll(mask),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) modify(fd int, mask Interest) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: interestToEpoll(mask),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if errors.Is(err, unix.EBADF) || errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("%w: %w", errNotWatched, err)
	}
	return err
}

func (p *epollPoller) wait(events []Event, timeout time.Duration) (int, error) {
	raw := p.raw
	if len(events) < len(raw) {
		raw = raw[:len(events)]
	}

	n, err := unix.EpollWait(p.epfd, raw, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == p.wakeFd {
			drainWakeFd(p.wakeFd)
			continue
		}
		events[count] = Event{FD: fd, Ready: epollToInterest(raw[i].Events)}
		count++
	}
	return count, nil
}

func (p *epollPoller) wake() error {
	return signalWakeFd(p.wakeFd)
}

func (p *epollPoller) close() error {
	return errors.Join(unix.Close(p.wakeFd), unix.Close(p.epfd))
}

// interestToEpoll converts an Interest mask to epoll event flags.
func interestToEpoll(mask Interest) uint32 {
	var events uint32
	if mask&Readable != 0 {
		events |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

// epollToInterest converts epoll event flags to readiness. Error and hangup
// conditions are reported as both directions, so whichever handler is
// registered observes the condition on its next read or write.
func epollToInterest(events uint32) Interest {
	var ready Interest
	if events&unix.EPOLLIN != 0 {
		ready |= Readable
	}
	if events&unix.EPOLLOUT != 0 {
		ready |= Writable
	}
	if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		ready |= Readable | Writable
	}
	return ready
}
