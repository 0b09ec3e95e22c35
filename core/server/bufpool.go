package server

import (
	"sync"
	"sync/atomic"
)

// Read buffer sizes
const (
	smallReadBuffer = 8 * 1024  // typical request head plus small body
	largeReadBuffer = 64 * 1024 // bulk uploads
)

// readBufferPool recycles the per-connection read buffers with two size
// tiers. A connection starts on the small tier and moves to the large one
// once a read fills the buffer completely.
type readBufferPool struct {
	small sync.Pool
	large sync.Pool

	// Statistics
	smallHits atomic.Uint64
	largeHits atomic.Uint64
}

func newReadBufferPool() *readBufferPool {
	return &readBufferPool{
		small: sync.Pool{
			New: func() any {
				buf := make([]byte, smallReadBuffer)
				return &buf
			},
		},
		large: sync.Pool{
			New: func() any {
				buf := make([]byte, largeReadBuffer)
				return &buf
			},
		},
	}
}

// get acquires a read buffer for the given tier.
func (bp *readBufferPool) get(large bool) *[]byte {
	if large {
		bp.largeHits.Add(1)
		return bp.large.Get().(*[]byte)
	}
	bp.smallHits.Add(1)
	return bp.small.Get().(*[]byte)
}

// put returns a buffer to its tier by capacity. Foreign sizes are dropped.
func (bp *readBufferPool) put(buf *[]byte) {
	switch cap(*buf) {
	case smallReadBuffer:
		bp.small.Put(buf)
	case largeReadBuffer:
		bp.large.Put(buf)
	}
}

// Stats reports per-tier acquisition counts.
func (bp *readBufferPool) Stats() (small, large uint64) {
	return bp.smallHits.Load(), bp.largeHits.Load()
}

var readBuffers = newReadBufferPool()
