// Package server turns listener configurations into live listening
// sockets bound across a pool of event loops, accepts connections, and
// drives the per-connection request parse/dispatch cycle. TLS material is
// held per listener and can be hot-reloaded without dropping established
// connections.
package server

import (
	"sync"
	"sync/atomic"

	"github.com/fluxhttp/flux-server/core/http"
	"github.com/fluxhttp/flux-server/core/loop"
)

// TLSOption is one (directive, value) pair applied to a listener's TLS
// configuration, in order.
type TLSOption struct {
	Directive string
	Value     string
}

// ListenerConfig describes one logical listener. Immutable once handed to
// CreateListeners for a start cycle.
type ListenerConfig struct {
	Address    string
	Port       int
	UseTLS     bool
	CertFile   string
	KeyFile    string
	UseOldTLS  bool
	TLSOptions []TLSOption

	// MaxConnections caps concurrently accepted connections on this
	// listener; 0 means unlimited.
	MaxConnections int
}

// SockOptCallback receives a raw socket descriptor for option tuning.
type SockOptCallback func(fd int)

// ConnectionCallback observes every accepted connection; it runs on the
// connection's event loop.
type ConnectionCallback func(c *Conn)

// RequestHandler is the dispatch collaborator: it takes ownership of a
// complete (or streaming) request. It runs on the connection's event loop.
type RequestHandler func(req *http.Request, c *Conn)

// StreamPredicate decides, once the head of a request is parsed and before
// any body byte is consumed, whether the body should be streamed to the
// handler instead of buffered. It runs on the connection's event loop.
type StreamPredicate func(req *http.Request) bool

// Manager is the listener registry and acceptor manager. Lifecycle calls
// (AddListener, CreateListeners, StartListening, StopListening,
// ReloadSSLFiles) must be serialized by the caller's control flow; only
// the accept path itself is concurrent.
type Manager struct {
	mu      sync.Mutex
	configs []ListenerConfig
	servers []*server
	loops   []*loop.EventLoop
	cursor  atomic.Uint64
	created bool
	started bool

	beforeListenSockOpt SockOptCallback
	afterAcceptSockOpt  SockOptCallback
	connectionCb        ConnectionCallback
	handler             RequestHandler
	streamPredicate     StreamPredicate

	spillThreshold int64
	maxDecompress  int64
}

// NewManager returns an empty registry.
func NewManager() *Manager {
	return &Manager{}
}

// AddListener appends a listener configuration. No socket is created until
// CreateListeners.
func (m *Manager) AddListener(cfg ListenerConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs = append(m.configs, cfg)
}

// SetBeforeListenSockOptCallback installs the hook invoked with each raw
// listening socket before it starts listening. Write-once, before
// CreateListeners.
func (m *Manager) SetBeforeListenSockOptCallback(cb SockOptCallback) {
	m.beforeListenSockOpt = cb
}

// SetAfterAcceptSockOptCallback installs the hook invoked with each
// accepted connection's raw socket. Write-once, before StartListening.
func (m *Manager) SetAfterAcceptSockOptCallback(cb SockOptCallback) {
	m.afterAcceptSockOpt = cb
}

// SetConnectionCallback installs the callback forwarded to every listener
// instance and invoked per accepted connection. Write-once, before
// StartListening.
func (m *Manager) SetConnectionCallback(cb ConnectionCallback) {
	m.connectionCb = cb
}

// SetRequestHandler installs the dispatch collaborator. Write-once, before
// StartListening.
func (m *Manager) SetRequestHandler(h RequestHandler) {
	m.handler = h
}

// SetStreamPredicate installs the early hand-off decision: requests it
// accepts are switched to streaming mode and dispatched as soon as their
// head is parsed, with body chunks pushed to the reader the handler
// attaches. Write-once, before StartListening.
func (m *Manager) SetStreamPredicate(p StreamPredicate) {
	m.streamPredicate = p
}

// SetRequestLimits applies body handling limits to every request created
// by this manager's connections: the in-memory spill threshold and the
// decompressed-output bound. Zero keeps a limit at its package default.
// Write-once, before StartListening.
func (m *Manager) SetRequestLimits(spillThreshold, maxDecompress int64) {
	m.spillThreshold = spillThreshold
	m.maxDecompress = maxDecompress
}
