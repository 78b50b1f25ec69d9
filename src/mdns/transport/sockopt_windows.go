//go:build windows

package transport

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

// reuseAddr marks a socket so that port 5353 can be shared with other mDNS
// responders on the host. Windows has no SO_REUSEPORT; SO_REUSEADDR alone
// provides the shared-port semantics.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error

	err := c.Control(func(fd uintptr) {
		serr = windows.SetsockoptInt(
			windows.Handle(fd),
			windows.SOL_SOCKET,
			windows.SO_REUSEADDR,
			1,
		)
	})

	if err != nil {
		return err
	}

	return serr
}

// isAddrNotAvailable returns true if err indicates that a local address can
// not be bound, such as a VPN address that has already gone away.
func isAddrNotAvailable(err error) bool {
	return errors.Is(err, windows.WSAEADDRNOTAVAIL)
}
