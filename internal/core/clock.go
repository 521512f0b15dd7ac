package core

import (
	"container/heap"
	"sync"
	"time"
)

// Clock supplies the current instant and deferred callbacks. The event
// sequencer and lifecycle continuations consult it instead of the wall clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer cancels a pending AfterFunc callback.
type Timer interface {
	Stop() bool
}

// RealClock is the wall clock in UTC.
type RealClock struct{}

// Now returns time.Now in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// AfterFunc delegates to time.AfterFunc.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// VirtualClock only moves when Advance or Set is called. Callbacks become due
// in (deadline, registration) order and run on the advancing goroutine.
type VirtualClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending timerHeap
}

// NewVirtualClock starts a virtual clock at start (UTC).
func NewVirtualClock(start time.Time) *VirtualClock {
	c := &VirtualClock{now: start.UTC()}
	heap.Init(&c.pending)
	return c
}

// Now returns the current virtual instant.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the clock reaches now+d.
func (c *VirtualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &virtualTimer{clock: c, when: c.now.Add(d), seq: c.seq, fn: f, index: -1}
	heap.Push(&c.pending, t)
	return t
}

// Pending reports how many callbacks have not yet fired.
func (c *VirtualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}

// Advance moves the clock forward by d, firing due callbacks in order.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.Set(target)
}

// Set moves the clock to t. Moving backwards only updates Now.
func (c *VirtualClock) Set(t time.Time) {
	t = t.UTC()
	for {
		c.mu.Lock()
		if c.pending.Len() == 0 || c.pending[0].when.After(t) {
			c.now = t
			c.mu.Unlock()
			return
		}
		next := heap.Pop(&c.pending).(*virtualTimer)
		if next.when.After(c.now) {
			c.now = next.when
		}
		c.mu.Unlock()
		// Callbacks may register further timers, so the lock is released.
		next.fn()
	}
}

type virtualTimer struct {
	clock *VirtualClock
	when  time.Time
	seq   uint64
	fn    func()
	index int
}

func (t *virtualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&t.clock.pending, t.index)
	return true
}

// timerHeap orders timers by deadline then registration sequence.
type timerHeap []*virtualTimer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if !h[i].when.Equal(h[j].when) {
		return h[i].when.Before(h[j].when)
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*virtualTimer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// SessionClock wraps a Clock and remembers every callback it schedules so a
// session teardown can cancel them together.
type SessionClock struct {
	Clock
	mu      sync.Mutex
	timers  map[*sessionTimer]struct{}
	stopped bool
}

// NewSessionClock wraps base.
func NewSessionClock(base Clock) *SessionClock {
	return &SessionClock{Clock: base, timers: make(map[*sessionTimer]struct{})}
}

// AfterFunc schedules f on the wrapped clock unless the session has stopped.
func (c *SessionClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := &sessionTimer{owner: c}
	if c.stopped {
		return st
	}
	st.inner = c.Clock.AfterFunc(d, func() {
		c.mu.Lock()
		_, live := c.timers[st]
		delete(c.timers, st)
		c.mu.Unlock()
		if live {
			f()
		}
	})
	c.timers[st] = struct{}{}
	return st
}

// StopAll cancels every outstanding callback and refuses new ones.
func (c *SessionClock) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for st := range c.timers {
		st.inner.Stop()
		delete(c.timers, st)
	}
}

type sessionTimer struct {
	owner *SessionClock
	inner Timer
}

func (t *sessionTimer) Stop() bool {
	t.owner.mu.Lock()
	_, live := t.owner.timers[t]
	delete(t.owner.timers, t)
	t.owner.mu.Unlock()
	if !live || t.inner == nil {
		return false
	}
	return t.inner.Stop()
}
