//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package transport

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr marks a socket so that port 5353 can be shared with other mDNS
// responders on the host, including the one the OS itself may run.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error

	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if serr != nil {
			return
		}

		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})

	if err != nil {
		return err
	}

	return serr
}

// isAddrNotAvailable returns true if err indicates that a local address can
// not be bound, such as a VPN address that has already gone away.
func isAddrNotAvailable(err error) bool {
	return errors.Is(err, unix.EADDRNOTAVAIL)
}
