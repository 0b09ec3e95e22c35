//go:build !linux && !freebsd && !dragonfly

package server

// On platforms without kernel-balanced SO_REUSEPORT accept distribution a
// port is owned by a single listening socket: the manager runs one
// dedicated acceptor that fans accepted connections out to the loop pool.
const reusePortSupported = false

func setReusePort(fd int) error { return nil }
