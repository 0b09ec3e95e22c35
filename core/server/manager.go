package server

import (
	"errors"
	"fmt"
	"log"
	"net"

	"github.com/fluxhttp/flux-server/core/loop"
)

var (
	// ErrAlreadyCreated is returned when CreateListeners runs twice
	// without an intervening StopListening.
	ErrAlreadyCreated = errors.New("listeners already created")
	// ErrNotCreated is returned when a lifecycle call needs
	// CreateListeners first.
	ErrNotCreated = errors.New("listeners not created")
)

// nextLoop hands out loops round-robin for the single-acceptor fan-out
// path.
func (m *Manager) nextLoop() *loop.EventLoop {
	return m.loops[int(m.cursor.Add(1)-1)%len(m.loops)]
}

// CreateListeners materializes every registered configuration into bound
// listening sockets spread across ioLoops. A config's own cert/key
// overrides the global fallback pair. Any single listener failure fails
// the whole cycle and releases sockets already bound: running with fewer
// listeners than configured is a deployment-visible misconfiguration, not
// a degraded mode.
func (m *Manager) CreateListeners(globalCertFile, globalKeyFile string, globalOpts []TLSOption, ioLoops []*loop.EventLoop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created {
		return ErrAlreadyCreated
	}
	if len(ioLoops) == 0 {
		return errors.New("no io loops supplied")
	}
	m.loops = ioLoops

	servers := make([]*server, 0, len(m.configs))
	fail := func(err error) error {
		for _, s := range servers {
			s.closeListeners()
		}
		return err
	}
	for _, cfg := range m.configs {
		s, err := newServer(m, cfg, globalCertFile, globalKeyFile, globalOpts)
		if err != nil {
			return fail(err)
		}
		if err := s.listen(ioLoops); err != nil {
			return fail(err)
		}
		servers = append(servers, s)
	}
	m.servers = servers
	m.created = true
	return nil
}

// StartListening begins accepting on every created listener.
func (m *Manager) StartListening() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		return ErrNotCreated
	}
	if m.started {
		return nil
	}
	for _, s := range m.servers {
		s.start(m.loops)
		mode := "plain"
		if s.cfg.UseTLS {
			mode = "tls"
		}
		log.Printf("listening on %s (%s, %d socket(s))", s.bound, mode, len(s.listeners))
	}
	m.started = true
	return nil
}

// StopListening gracefully closes every listening socket without severing
// connections already accepted. The manager returns to the pre-create
// state so a new cycle can start.
func (m *Manager) StopListening() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.servers {
		s.stop()
	}
	m.servers = nil
	m.created = false
	m.started = false
}

// GetListeners returns the resolved bound address of every created
// listener, in registration order. Useful when a port was requested as 0.
func (m *Manager) GetListeners() []net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	addrs := make([]net.Addr, 0, len(m.servers))
	for _, s := range m.servers {
		addrs = append(addrs, s.bound)
	}
	return addrs
}

// ReloadSSLFiles re-reads certificate/key material for every TLS-enabled
// listener and swaps it atomically per listener: new handshakes see the
// refreshed material, connections established or mid-handshake are
// unaffected. A listener whose reload fails keeps its previous
// certificate; all failures are reported together.
func (m *Manager) ReloadSSLFiles() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, s := range m.servers {
		if s.holder == nil {
			continue
		}
		if err := s.holder.reload(); err != nil {
			errs = append(errs, fmt.Errorf("listener %s: %w", s.bound, err))
		}
	}
	return errors.Join(errs...)
}
