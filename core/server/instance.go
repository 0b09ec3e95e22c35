package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/net/netutil"
	"golang.org/x/sys/unix"

	"github.com/fluxhttp/flux-server/core/loop"
)

// server is one ListenerConfig materialized: its bound socket(s), TLS
// material and accept loops. With SO_REUSEPORT accept balancing the server
// owns one socket per event loop; otherwise a single socket with one
// dedicated acceptor fanning out.
type server struct {
	cfg     ListenerConfig
	mgr     *Manager
	holder  *certHolder
	tlsConf *tls.Config

	listeners []net.Listener
	bound     net.Addr
	wg        sync.WaitGroup
	closed    atomic.Bool
}

func newServer(mgr *Manager, cfg ListenerConfig, globalCert, globalKey string, globalOpts []TLSOption) (*server, error) {
	s := &server{cfg: cfg, mgr: mgr}
	if !cfg.UseTLS {
		return s, nil
	}
	certFile, keyFile := cfg.CertFile, cfg.KeyFile
	if certFile == "" {
		certFile = globalCert
	}
	if keyFile == "" {
		keyFile = globalKey
	}
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("listener %s:%d: tls enabled but no certificate/key configured", cfg.Address, cfg.Port)
	}
	holder, err := newCertHolder(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("listener %s:%d: %w", cfg.Address, cfg.Port, err)
	}
	opts := make([]TLSOption, 0, len(globalOpts)+len(cfg.TLSOptions))
	opts = append(opts, globalOpts...)
	opts = append(opts, cfg.TLSOptions...)
	conf, err := buildTLSConfig(holder, cfg.UseOldTLS, opts)
	if err != nil {
		return nil, fmt.Errorf("listener %s:%d: %w", cfg.Address, cfg.Port, err)
	}
	s.holder = holder
	s.tlsConf = conf
	return s, nil
}

// listen binds the server's socket(s). The before-listen callback runs
// against each raw descriptor before the socket starts listening. When the
// configured port is 0 the first bind resolves the real port and the
// remaining sockets reuse it, so GetListeners reports one coherent
// address.
func (s *server) listen(loops []*loop.EventLoop) error {
	count := 1
	if reusePortSupported && len(loops) > 1 {
		count = len(loops)
	}
	port := s.cfg.Port
	for i := 0; i < count; i++ {
		lc := net.ListenConfig{
			Control: func(network, address string, rc syscall.RawConn) error {
				var optErr error
				err := rc.Control(func(fd uintptr) {
					f := int(fd)
					if optErr = unix.SetsockoptInt(f, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); optErr != nil {
						return
					}
					if count > 1 {
						if optErr = setReusePort(f); optErr != nil {
							return
						}
					}
					if cb := s.mgr.beforeListenSockOpt; cb != nil {
						cb(f)
					}
				})
				if err != nil {
					return err
				}
				return optErr
			},
		}
		ln, err := lc.Listen(context.Background(), "tcp", net.JoinHostPort(s.cfg.Address, strconv.Itoa(port)))
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("listen %s:%d: %w", s.cfg.Address, port, err)
		}
		if i == 0 {
			s.bound = ln.Addr()
			port = ln.Addr().(*net.TCPAddr).Port
		}
		if s.cfg.MaxConnections > 0 {
			ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
		}
		s.listeners = append(s.listeners, ln)
	}
	return nil
}

// start begins accepting. One accept loop per socket; with a single socket
// the acceptor distributes connections round-robin over the loop pool,
// with per-loop sockets each acceptor pins its connections to its loop.
func (s *server) start(loops []*loop.EventLoop) {
	if len(s.listeners) > 1 {
		for i, ln := range s.listeners {
			owner := loops[i%len(loops)]
			s.wg.Add(1)
			go s.acceptLoop(ln, func() *loop.EventLoop { return owner })
		}
		return
	}
	s.wg.Add(1)
	go s.acceptLoop(s.listeners[0], s.mgr.nextLoop)
}

func (s *server) acceptLoop(ln net.Listener, pick func() *loop.EventLoop) {
	defer s.wg.Done()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("accept on %s: %v", ln.Addr(), err)
			continue
		}
		s.handleAccepted(nc, pick())
	}
}

func (s *server) handleAccepted(nc net.Conn, owner *loop.EventLoop) {
	applyDefaultConnOpts(nc)
	if cb := s.mgr.afterAcceptSockOpt; cb != nil {
		withRawFD(nc, cb)
	}
	c := newConn(nc, s, owner)
	owner.RunInLoop(func() {
		if cb := s.mgr.connectionCb; cb != nil {
			cb(c)
		}
	})
	go c.serve()
}

// stop closes the listening sockets and waits for the accept loops to
// exit. Connections already accepted are untouched.
func (s *server) stop() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.closeListeners()
	s.wg.Wait()
}

func (s *server) closeListeners() {
	for _, ln := range s.listeners {
		ln.Close()
	}
}

// applyDefaultConnOpts mirrors the usual accepted-socket tuning: disable
// Nagle, enable TCP keepalive.
func applyDefaultConnOpts(nc net.Conn) {
	withRawFD(nc, func(fd int) {
		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	})
}

// withRawFD runs f with the connection's raw descriptor, when the
// transport exposes one.
func withRawFD(nc net.Conn, f func(fd int)) {
	sc, ok := nc.(syscall.Conn)
	if !ok {
		return
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return
	}
	raw.Control(func(fd uintptr) { f(int(fd)) })
}
