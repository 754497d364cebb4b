package session

import (
	"context"
	"sync"
)

type waiter struct {
	gen   uint64
	ready chan struct{}
}

// DispatchMutex serializes tool calls against a session's browser. Waiters
// are granted the lock strictly in the order their Acquire calls arrived; a
// waiter whose context is canceled leaves the queue without disturbing the
// order of the others.
type DispatchMutex struct {
	mu      sync.Mutex
	locked  bool
	owner   uint64
	nextGen uint64
	queue   []*waiter
}

// Guard represents one acquisition. Release is idempotent, and a guard from
// an earlier acquisition can never release a lock that has since been granted
// to someone else.
type Guard struct {
	m    *DispatchMutex
	gen  uint64
	once sync.Once
}

// Acquire blocks until the lock is granted or ctx is done.
func (m *DispatchMutex) Acquire(ctx context.Context) (*Guard, error) {
	m.mu.Lock()
	m.nextGen++
	gen := m.nextGen

	if !m.locked {
		m.locked = true
		m.owner = gen
		m.mu.Unlock()
		return &Guard{m: m, gen: gen}, nil
	}

	w := &waiter{gen: gen, ready: make(chan struct{})}
	m.queue = append(m.queue, w)
	m.mu.Unlock()

	select {
	case <-w.ready:
		return &Guard{m: m, gen: gen}, nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, q := range m.queue {
			if q == w {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				m.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		// Granted between ctx.Done and taking the queue lock: give it back so
		// the next waiter is not stranded.
		granted := m.locked && m.owner == gen
		m.mu.Unlock()
		if granted {
			m.release(gen)
		}
		return nil, ctx.Err()
	}
}

// TryAcquire grants the lock only when it is free, never queueing.
func (m *DispatchMutex) TryAcquire() (*Guard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return nil, false
	}
	m.nextGen++
	m.locked = true
	m.owner = m.nextGen
	return &Guard{m: m, gen: m.nextGen}, true
}

// release hands the lock to the head of the queue, or unlocks when the queue
// is empty. Stale generations are ignored.
func (m *DispatchMutex) release(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.locked || m.owner != gen {
		return
	}

	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.owner = next.gen
		close(next.ready)
		return
	}

	m.locked = false
	m.owner = 0
}

func (m *DispatchMutex) queueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Release returns the lock. Calling it more than once, or on a guard whose
// acquisition has already been superseded, is a no-op.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.once.Do(func() { g.m.release(g.gen) })
}
