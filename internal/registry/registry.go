// Package registry records which slaves a master currently holds, so the
// membership is visible outside the process.
package registry

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Member is one connected slave.
type Member struct {
	Addr   string    `json:"addr"`
	Mode   string    `json:"mode"`
	Joined time.Time `json:"joined"`
}

// Registry stores slave membership. Implementations must be safe for
// concurrent use.
type Registry interface {
	Join(ctx context.Context, m Member) error
	Leave(ctx context.Context, addr string) error
	Members(ctx context.Context) ([]Member, error)
}

// Nop discards membership changes.
type Nop struct{}

func (Nop) Join(context.Context, Member) error        { return nil }
func (Nop) Leave(context.Context, string) error       { return nil }
func (Nop) Members(context.Context) ([]Member, error) { return nil, nil }

// Memory keeps membership in process.
type Memory struct {
	mu      sync.Mutex
	members map[string]Member
}

func NewMemory() *Memory {
	return &Memory{members: make(map[string]Member)}
}

func (r *Memory) Join(_ context.Context, m Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.Addr] = m
	return nil
}

func (r *Memory) Leave(_ context.Context, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, addr)
	return nil
}

// Members returns the current members sorted by address.
func (r *Memory) Members(_ context.Context) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Member) int { return strings.Compare(a.Addr, b.Addr) })
	return out, nil
}
