// Package loop provides the reactor pool: single-goroutine event loops
// with a serialized task queue. Every connection is pinned to one loop and
// all mutation of its in-flight requests runs as tasks on that loop, which
// is what makes the request object's lazy caches safe without locking.
package loop

import (
	"bytes"
	"log"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

const defaultQueueSize = 1024

// EventLoop executes queued tasks on a single dedicated goroutine.
type EventLoop struct {
	tasks chan func()
	done  chan struct{}
	gid   atomic.Uint64

	mu      sync.RWMutex
	started bool
	stopped bool
}

// goroutineID parses the current goroutine's id from its stack header.
// Used only to recognize re-entrant RunInLoop calls.
func goroutineID() uint64 {
	var buf [32]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(string(fields[1]), 10, 64)
	return id
}

// New creates a stopped event loop; call Run to start its goroutine.
func New() *EventLoop {
	return &EventLoop{
		tasks: make(chan func(), defaultQueueSize),
		done:  make(chan struct{}),
	}
}

// Run starts the loop goroutine. Calling Run twice is a no-op.
func (l *EventLoop) Run() {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()
	go l.run()
}

func (l *EventLoop) run() {
	l.gid.Store(goroutineID())
	defer close(l.done)
	for task := range l.tasks {
		l.invoke(task)
	}
}

// IsInLoop reports whether the caller is running on this loop's goroutine.
func (l *EventLoop) IsInLoop() bool {
	gid := l.gid.Load()
	return gid != 0 && gid == goroutineID()
}

func (l *EventLoop) invoke(task func()) {
	defer func() {
		if r := recover(); r != nil {
			// A panicking task must not take down the loop; every other
			// connection on it would be orphaned.
			log.Printf("event loop: recovered panic in task: %v", r)
		}
	}()
	task()
}

// RunInLoop runs fn on the loop goroutine: inline when already on it
// (which also avoids deadlocking on a full queue), queued otherwise.
// Queued tasks run in submission order. Calls after Stop are dropped.
func (l *EventLoop) RunInLoop(fn func()) {
	if l.IsInLoop() {
		fn()
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped {
		return
	}
	l.tasks <- fn
}

// Stop drains queued tasks and terminates the loop goroutine, blocking
// until it exits.
func (l *EventLoop) Stop() {
	l.mu.Lock()
	if !l.stopped {
		l.stopped = true
		close(l.tasks)
		if !l.started {
			close(l.done)
		}
	}
	l.mu.Unlock()
	<-l.done
}

// Pool is a fixed set of event loops with round-robin assignment.
type Pool struct {
	loops []*EventLoop
	next  atomic.Uint64
}

// NewPool creates and starts n loops; n < 1 is clamped to 1.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{loops: make([]*EventLoop, n)}
	for i := range p.loops {
		p.loops[i] = New()
		p.loops[i].Run()
	}
	return p
}

// Next returns the next loop in round-robin order.
func (p *Pool) Next() *EventLoop {
	return p.loops[int(p.next.Add(1)-1)%len(p.loops)]
}

// Loops returns the pool's loops in fixed order.
func (p *Pool) Loops() []*EventLoop { return p.loops }

// Size returns the number of loops.
func (p *Pool) Size() int { return len(p.loops) }

// Stop stops every loop in the pool.
func (p *Pool) Stop() {
	for _, l := range p.loops {
		l.Stop()
	}
}
