package slavepool

import (
	"net"
	"sync"
	"time"
)

// Slave is one pooled connection to a slave.
type Slave struct {
	Conn   net.Conn
	Addr   string
	Joined time.Time

	busy bool // guarded by Pool.mu
}

// Pool is an ordered set of slaves with a round-robin cursor. A slave handed
// out by Next stays in the pool but is checked out: it carries exactly one
// relay and is skipped until removed. Pool is safe for concurrent use; the
// lock is never held across I/O.
type Pool struct {
	mu     sync.Mutex
	slaves []*Slave
	next   int
}

// Add appends s and returns the new pool size.
func (p *Pool) Add(s *Slave) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.slaves = append(p.slaves, s)
	return len(p.slaves)
}

// Next checks out the first idle slave at or after the cursor, taking the
// cursor modulo the current pool size, and moves the cursor past it. It
// returns false when the pool is empty or every slave is checked out.
func (p *Pool) Next() (*Slave, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.slaves)
	for k := range n {
		i := (p.next + k) % n
		s := p.slaves[i]
		if s.busy {
			continue
		}
		s.busy = true
		p.next = (i + 1) % n
		return s, true
	}
	return nil, false
}

// Remove deletes s from the pool, keeping the order of the others, and
// reports whether it was present. The cursor keeps pointing at the slave it
// pointed at before, or wraps to the start if that was s at the end.
func (p *Pool) Remove(s *Slave) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, cur := range p.slaves {
		if cur != s {
			continue
		}
		p.slaves = append(p.slaves[:i], p.slaves[i+1:]...)
		if i < p.next {
			p.next--
		}
		if p.next >= len(p.slaves) {
			p.next = 0
		}
		return true
	}
	return false
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slaves)
}

// Drain empties the pool and returns what it held.
func (p *Pool) Drain() []*Slave {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.slaves
	p.slaves = nil
	p.next = 0
	return out
}
