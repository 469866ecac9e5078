//go:build linux

package hotplug

import (
	"context"
	"errors"
	"slices"
	"syscall"
)

// netlinkKobjectUEvent is the netlink protocol of kernel object events.
const netlinkKobjectUEvent = 15

// Monitor reads uevents from the kernel broadcast group.
type Monitor struct {
	fd         int
	subsystems []string
}

// NewMonitor opens the uevent socket. Only events of the given subsystems
// are delivered, or all events when none are given.
func NewMonitor(subsystems ...string) (*Monitor, error) {
	fd, err := syscall.Socket(syscall.AF_NETLINK, syscall.SOCK_DGRAM|syscall.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}
	if err := syscall.Bind(fd, &syscall.SockaddrNetlink{Family: syscall.AF_NETLINK, Groups: 1}); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	// A receive timeout lets Run notice cancellation.
	tv := syscall.Timeval{Sec: 1}
	if err := syscall.SetsockoptTimeval(fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	return &Monitor{fd: fd, subsystems: subsystems}, nil
}

// Run delivers events until ctx ends or the socket fails. On return it
// closes out and the socket.
func (m *Monitor) Run(ctx context.Context, out chan<- Event) error {
	defer close(out)
	defer m.Close()
	buf := make([]byte, 8192)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, _, err := syscall.Recvfrom(m.fd, buf, 0)
		switch {
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
			continue
		case err != nil:
			return err
		case n == 0:
			continue
		}

		ev := ParseUEvent(buf[:n])
		if ev == nil || (len(m.subsystems) > 0 && !slices.Contains(m.subsystems, ev.Subsystem)) {
			continue
		}
		select {
		case out <- *ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close releases the socket of a monitor that is not running.
func (m *Monitor) Close() error {
	return syscall.Close(m.fd)
}
