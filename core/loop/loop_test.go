package loop

import (
	"sync"
	"testing"
	"time"
)

// TestTaskOrdering tests that tasks run in submission order
func TestTaskOrdering(t *testing.T) {
	l := New()
	l.Run()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		l.RunInLoop(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for tasks")
	}
	l.Stop()

	for i, v := range got {
		if v != i {
			t.Fatalf("Expected task %d at position %d, got %d", i, i, v)
		}
	}
}

// TestStopDrainsQueue tests that Stop waits for queued tasks
func TestStopDrainsQueue(t *testing.T) {
	l := New()
	l.Run()

	ran := 0
	for i := 0; i < 50; i++ {
		l.RunInLoop(func() { ran++ })
	}
	l.Stop()

	if ran != 50 {
		t.Errorf("Expected all 50 tasks to run before Stop returned, got %d", ran)
	}
}

// TestRunInLoopAfterStop tests that late submissions are dropped, not
// panicking
func TestRunInLoopAfterStop(t *testing.T) {
	l := New()
	l.Run()
	l.Stop()
	l.RunInLoop(func() { t.Error("Task ran after Stop") })
}

// TestStopWithoutRun tests stopping a loop that never started
func TestStopWithoutRun(t *testing.T) {
	l := New()
	l.Stop()
}

// TestTaskPanicRecovered tests that a panicking task does not kill the
// loop
func TestTaskPanicRecovered(t *testing.T) {
	l := New()
	l.Run()

	l.RunInLoop(func() { panic("task blew up") })
	survived := make(chan struct{})
	l.RunInLoop(func() { close(survived) })

	select {
	case <-survived:
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not survive a panicking task")
	}
	l.Stop()
}

// TestRunInLoopReentrant tests that a submission from inside a task runs
// inline instead of deadlocking on the queue
func TestRunInLoopReentrant(t *testing.T) {
	l := New()
	l.Run()

	result := make(chan bool, 1)
	l.RunInLoop(func() {
		if !l.IsInLoop() {
			t.Error("Expected IsInLoop inside a task")
		}
		ran := false
		l.RunInLoop(func() { ran = true })
		result <- ran
	})

	select {
	case ran := <-result:
		if !ran {
			t.Error("Expected re-entrant submission to run inline")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out")
	}
	if l.IsInLoop() {
		t.Error("Expected IsInLoop false off the loop goroutine")
	}
	l.Stop()
}

// TestPoolRoundRobin tests loop distribution
func TestPoolRoundRobin(t *testing.T) {
	p := NewPool(3)
	defer p.Stop()

	if p.Size() != 3 {
		t.Fatalf("Expected 3 loops, got %d", p.Size())
	}
	a, b, c, d := p.Next(), p.Next(), p.Next(), p.Next()
	if a == b || b == c || a == c {
		t.Error("Expected distinct loops across one round")
	}
	if a != d {
		t.Error("Expected round-robin to wrap to the first loop")
	}
}

// TestPoolClamp tests that a non-positive size is clamped to one loop
func TestPoolClamp(t *testing.T) {
	p := NewPool(0)
	defer p.Stop()
	if p.Size() != 1 {
		t.Errorf("Expected 1 loop, got %d", p.Size())
	}
}
