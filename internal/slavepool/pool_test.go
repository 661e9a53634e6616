package slavepool

import (
	"fmt"
	"sync"
	"testing"
)

func newSlaves(n int) []*Slave {
	out := make([]*Slave, n)
	for i := range out {
		out[i] = &Slave{Addr: fmt.Sprintf("slave-%d", i)}
	}
	return out
}

func TestPoolNextChecksOutInOrder(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			var p Pool
			slaves := newSlaves(n)
			for i, s := range slaves {
				if got := p.Add(s); got != i+1 {
					t.Fatalf("Add returned %d, want %d", got, i+1)
				}
			}

			for i := range n {
				s, ok := p.Next()
				if !ok {
					t.Fatalf("call %d: no idle slave", i)
				}
				if s != slaves[i] {
					t.Fatalf("call %d: got %s, want %s", i, s.Addr, slaves[i].Addr)
				}
			}

			// Every slave carries a relay now.
			if s, ok := p.Next(); ok {
				t.Fatalf("checked out %s twice", s.Addr)
			}
			if got := p.Len(); got != n {
				t.Fatalf("Len = %d, want %d", got, n)
			}
		})
	}
}

func TestPoolNextWrapsToReplacement(t *testing.T) {
	var p Pool
	slaves := newSlaves(4)
	for _, s := range slaves[:3] {
		p.Add(s)
	}

	// A, B, C are checked out; A's relay ends and D joins.
	for range 3 {
		p.Next()
	}
	p.Remove(slaves[0])
	p.Add(slaves[3])

	s, ok := p.Next()
	if !ok || s != slaves[3] {
		t.Fatalf("got %v, want %s", s, slaves[3].Addr)
	}
}

func TestPoolNextEmpty(t *testing.T) {
	var p Pool
	if s, ok := p.Next(); ok || s != nil {
		t.Fatalf("expected no slave, got %v", s)
	}

	s := newSlaves(1)[0]
	p.Add(s)
	p.Remove(s)
	if _, ok := p.Next(); ok {
		t.Fatal("expected empty pool after removing the only slave")
	}
}

func TestPoolRemove(t *testing.T) {
	tests := []struct {
		name   string
		calls  int // slaves checked out before Remove
		remove int
		want   []int // idle slaves handed out afterwards, in order
	}{
		{name: "before cursor", calls: 2, remove: 0, want: []int{2, 3}},
		{name: "at cursor", calls: 1, remove: 1, want: []int{2, 3}},
		{name: "after cursor", calls: 1, remove: 3, want: []int{1, 2}},
		{name: "last at cursor wraps", calls: 3, remove: 3, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Pool
			slaves := newSlaves(4)
			for _, s := range slaves {
				p.Add(s)
			}
			for range tt.calls {
				p.Next()
			}

			if !p.Remove(slaves[tt.remove]) {
				t.Fatal("Remove returned false for a pooled slave")
			}
			if p.Remove(slaves[tt.remove]) {
				t.Fatal("second Remove returned true")
			}
			if got := p.Len(); got != 3 {
				t.Fatalf("Len = %d, want 3", got)
			}

			for i, w := range tt.want {
				s, ok := p.Next()
				if !ok || s != slaves[w] {
					t.Fatalf("call %d: got %v, want %s", i, s, slaves[w].Addr)
				}
			}
			if s, ok := p.Next(); ok {
				t.Fatalf("expected every slave checked out, got %s", s.Addr)
			}
		})
	}
}

func TestPoolDrain(t *testing.T) {
	var p Pool
	slaves := newSlaves(3)
	for _, s := range slaves {
		p.Add(s)
	}
	p.Next()

	if got := p.Drain(); len(got) != 3 {
		t.Fatalf("Drain returned %d slaves, want 3", len(got))
	}
	if p.Len() != 0 {
		t.Fatal("pool not empty after Drain")
	}

	p.Add(slaves[2])
	if s, _ := p.Next(); s != slaves[2] {
		t.Fatal("cursor not reset by Drain")
	}
}

func TestPoolConcurrent(t *testing.T) {
	var p Pool
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for _, s := range newSlaves(50) {
				p.Add(s)
				if got, ok := p.Next(); ok {
					p.Remove(got)
				}
			}
		})
	}
	wg.Wait()

	// Two workers may pick the same slave, so some survive; the pool just
	// has to stay consistent.
	n := p.Len()
	if got := len(p.Drain()); got != n || n > 8*50 {
		t.Fatalf("Len = %d, Drain returned %d", n, got)
	}
}
