//go:build linux || freebsd || dragonfly

package server

import "golang.org/x/sys/unix"

// reusePortSupported reports whether the platform load-balances accepts
// across multiple sockets bound to one port, allowing one acceptor socket
// per event loop. Resolved at compile time.
const reusePortSupported = true

func setReusePort(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}
