//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

// node is a device node opened for queries.
type node int

// openNode opens path without blocking. Capability and enumeration ioctls
// need no exclusive access, so a node in use by a streamer can be queried.
func openNode(path string) (node, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NONBLOCK|syscall.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", path, err)
	}
	return node(fd), nil
}

func (n node) Close() error {
	return syscall.Close(int(n))
}

// ioctl issues req, retrying when a signal interrupts it.
func (n node) ioctl(req uint, arg unsafe.Pointer) error {
	for {
		_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(n), uintptr(req), uintptr(arg))
		switch errno {
		case 0:
			return nil
		case syscall.EINTR:
			continue
		default:
			return errno
		}
	}
}

// endOfList reports whether an enumeration ioctl ran past its last index.
func endOfList(err error) bool {
	return errors.Is(err, syscall.EINVAL)
}
