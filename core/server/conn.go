package server

import (
	"crypto/tls"
	"log"
	"net"
	"sync/atomic"

	"github.com/fluxhttp/flux-server/core/http"
	"github.com/fluxhttp/flux-server/core/loop"
)

// Conn is one accepted connection, pinned to a single event loop. A
// dedicated reader goroutine performs the blocking socket reads and posts
// the bytes to the owning loop; parsing and every mutation of the in-flight
// request happen only on that loop, preserving the single-writer
// discipline the request's lazy caches depend on.
//
// Conn implements http.ConnectionHandle: requests hold it as a weak
// back-reference for liveness queries only.
type Conn struct {
	nc   net.Conn
	tc   *tls.Conn
	srv  *server
	loop *loop.EventLoop

	closed atomic.Bool

	// Loop-owned state below; never touched off-loop.
	req    *http.Request
	parser *http.RequestParser
}

func newConn(nc net.Conn, srv *server, owner *loop.EventLoop) *Conn {
	c := &Conn{nc: nc, srv: srv, loop: owner}
	if srv.tlsConf != nil {
		c.tc = tls.Server(nc, srv.tlsConf)
	}
	return c
}

func (c *Conn) transport() net.Conn {
	if c.tc != nil {
		return c.tc
	}
	return c.nc
}

// Connected reports liveness. Part of the weak-handle contract consumed by
// http.Request.
func (c *Conn) Connected() bool { return !c.closed.Load() }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// LocalAddr returns the local address.
func (c *Conn) LocalAddr() net.Addr { return c.nc.LocalAddr() }

// IsTLS reports whether the connection carries TLS.
func (c *Conn) IsTLS() bool { return c.tc != nil }

// Loop returns the event loop owning this connection.
func (c *Conn) Loop() *loop.EventLoop { return c.loop }

// Write sends bytes to the peer through the active transport.
func (c *Conn) Write(p []byte) (int, error) {
	return c.transport().Write(p)
}

// Close severs the connection. Idempotent.
func (c *Conn) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.transport().Close()
	}
}

// serve is the reader: TLS handshake first (so the peer certificate is
// available before the first request exists), then blocking reads feeding
// the owning loop.
func (c *Conn) serve() {
	if c.tc != nil {
		if err := c.tc.Handshake(); err != nil {
			log.Printf("tls handshake from %s: %v", c.nc.RemoteAddr(), err)
			c.Close()
			return
		}
	}
	c.loop.RunInLoop(c.beginRequest)
	bufp := readBuffers.get(false)
	defer func() { readBuffers.put(bufp) }()
	for {
		buf := *bufp
		n, err := c.transport().Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			c.loop.RunInLoop(func() { c.feed(data) })
		}
		if err != nil {
			c.loop.RunInLoop(func() { c.onReadClosed(err) })
			return
		}
		// A completely filled small buffer suggests a bulk transfer;
		// switch this connection to the large tier.
		if n == len(buf) && cap(buf) == smallReadBuffer {
			readBuffers.put(bufp)
			bufp = readBuffers.get(true)
		}
	}
}

// beginRequest sets up the next in-flight request on the loop.
func (c *Conn) beginRequest() {
	req := http.AcquireRequest()
	req.SetPeerAddr(c.nc.RemoteAddr())
	req.SetLocalAddr(c.nc.LocalAddr())
	req.SetConnection(c)
	if t := c.srv.mgr.spillThreshold; t > 0 {
		req.SetSpillThreshold(t)
	}
	if n := c.srv.mgr.maxDecompress; n > 0 {
		req.SetMaxDecompressSize(n)
	}
	if c.tc != nil {
		req.SetSecure(true)
		state := c.tc.ConnectionState()
		if len(state.PeerCertificates) > 0 {
			req.SetPeerCertificate(state.PeerCertificates[0])
		}
	}
	c.req = req
	if c.parser == nil {
		c.parser = http.NewRequestParser(req)
		c.parser.SetHeadCallback(c.onHeadComplete)
	} else {
		c.parser.Reset(req)
	}
}

// onHeadComplete runs once per message when the head is fully parsed. A
// request the stream predicate claims is switched to streaming delivery
// and dispatched immediately, so the handler can attach its reader before
// body bytes arrive.
func (c *Conn) onHeadComplete(req *http.Request) {
	pred := c.srv.mgr.streamPredicate
	if pred == nil || !pred(req) {
		return
	}
	req.StreamStart()
	c.dispatch()
}

// feed runs on the loop: drive the parser, dispatch completed messages,
// and set up the next one for pipelined input.
func (c *Conn) feed(data []byte) {
	if c.closed.Load() || c.req == nil {
		return
	}
	for len(data) > 0 {
		n, complete, err := c.parser.Feed(data)
		if err != nil {
			log.Printf("parse from %s: %v", c.nc.RemoteAddr(), err)
			c.Close()
			return
		}
		data = data[n:]
		if !complete {
			return
		}
		keepAlive := c.req.KeepAlive()
		c.dispatch()
		// The handler owns the dispatched request from here; never touch
		// it again through c.req.
		if !keepAlive {
			c.req = nil
			return
		}
		c.beginRequest()
	}
}

func (c *Conn) dispatch() {
	req := c.req
	if req.IsProcessingStarted() {
		return
	}
	req.StartProcessing()
	if h := c.srv.mgr.handler; h != nil {
		h(req, c)
	}
}

// onReadClosed runs on the loop when the reader sees EOF or a fault. A
// request streaming its body is aborted so the attached reader and any
// finish callback are unblocked.
func (c *Conn) onReadClosed(err error) {
	if c.req != nil && c.req.StreamStatus() == http.StreamOpen {
		c.req.StreamError(err)
	}
	c.Close()
}
