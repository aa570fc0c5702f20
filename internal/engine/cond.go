// Package engine implements the concurrent core shared by every background
// worker in a node: a timeout-capable condition variable, a socket
// multiplexer that is the sole reader of the listen socket, and the cache
// reaper.
package engine

import (
	"sync"
	"time"
)

// Cond is a sync.Cond-alike that adds a timeout to Wait. The standard
// library's sync.Cond has no such primitive, and nothing in the wider
// ecosystem implements "wait for a broadcast or a deadline, whichever
// comes first" either — context cancellation expresses "wait for done",
// not "wait for done or a fixed timer" without an extra goroutine per
// call — so this composes a mutex with a per-generation broadcast channel
// instead.
type Cond struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewCond returns a ready-to-use Cond.
func NewCond() *Cond {
	return &Cond{ch: make(chan struct{})}
}

// Lock acquires the condition's critical section.
func (c *Cond) Lock() { c.mu.Lock() }

// Unlock releases the condition's critical section.
func (c *Cond) Unlock() { c.mu.Unlock() }

// Broadcast wakes every goroutine currently blocked in WaitTimeout. Callers
// must hold the lock.
func (c *Cond) Broadcast() {
	close(c.ch)
	c.ch = make(chan struct{})
}

// WaitTimeout releases the lock, blocks until the next Broadcast or until d
// elapses, then reacquires the lock before returning. It reports true if
// woken by a Broadcast, false on timeout. Callers must hold the lock when
// calling WaitTimeout and will hold it again when it returns.
func (c *Cond) WaitTimeout(d time.Duration) bool {
	gen := c.ch
	c.mu.Unlock()
	defer c.mu.Lock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-gen:
		return true
	case <-timer.C:
		return false
	}
}
