package slavepool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/rsocx/internal/conn"
	"github.com/die-net/rsocx/internal/metrics"
	"github.com/die-net/rsocx/internal/proxy"
	"github.com/die-net/rsocx/internal/registry"
)

// ModeRoundRobin labels distribution-mode relays in metrics and the registry.
const ModeRoundRobin = "round-robin"

type Config struct {
	Registry registry.Registry
	Verbose  bool
}

// Distributor is the master side of distribution mode.
type Distributor struct {
	cfg      Config
	pool     Pool
	removals chan *Slave
}

func NewDistributor(cfg Config) *Distributor {
	if cfg.Registry == nil {
		cfg.Registry = registry.Nop{}
	}
	return &Distributor{
		cfg:      cfg,
		removals: make(chan *Slave),
	}
}

// Pool returns the live pool.
func (d *Distributor) Pool() *Pool {
	return &d.pool
}

// Serve admits slaves from transfer and distributes clients accepted on
// public until ctx is canceled or either listener is closed or fails. Serve
// closes both listeners and every pooled slave connection before returning.
// A listener closed out from under it is a clean stop and returns nil.
func (d *Distributor) Serve(ctx context.Context, transfer, public net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	stop := context.AfterFunc(ctx, func() {
		_ = transfer.Close()
		_ = public.Close()
	})
	defer stop()

	log.Printf("slavepool: admitting slaves on %s, serving clients on %s", transfer.Addr(), public.Addr())

	g.Go(func() error { return d.admit(ctx, transfer) })
	g.Go(func() error { return d.distribute(ctx, public) })
	g.Go(func() error {
		d.reap(ctx)
		return nil
	})

	err := g.Wait()
	d.closeAll()
	if errors.Is(err, errStopped) {
		return nil
	}
	return err
}

// errStopped ends the errgroup when a listener is closed, so the other
// goroutines unwind too.
var errStopped = errors.New("listener closed")

func (d *Distributor) admit(ctx context.Context, transfer net.Listener) error {
	for {
		c, err := transfer.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return errStopped
			}
			if conn.IsTemporary(err) {
				log.Printf("slavepool: accept slave: %v", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept slave: %w", err)
		}

		s := &Slave{Conn: c, Addr: c.RemoteAddr().String(), Joined: time.Now()}
		n := d.pool.Add(s)
		metrics.Slaves.Inc()
		if err := d.cfg.Registry.Join(ctx, registry.Member{Addr: s.Addr, Mode: ModeRoundRobin, Joined: s.Joined}); err != nil {
			log.Printf("slavepool: registry join %s: %v", s.Addr, err)
		}
		if d.cfg.Verbose {
			log.Printf("slavepool: accepted slave %s (%d pooled)", s.Addr, n)
		}
	}
}

func (d *Distributor) distribute(ctx context.Context, public net.Listener) error {
	for {
		client, err := public.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return errStopped
			}
			if conn.IsTemporary(err) {
				log.Printf("slavepool: accept client: %v", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept client: %w", err)
		}

		s, ok := d.pool.Next()
		if !ok {
			log.Printf("slavepool: no idle slave (%d pooled), dropping %s", d.pool.Len(), client.RemoteAddr())
			metrics.DroppedClientTotal.WithLabelValues(metrics.ReasonNoSlave).Inc()
			_ = client.Close()
			continue
		}

		go d.relay(ctx, client, s)
	}
}

// relay owns client and the checked-out s.Conn. When the relay ends the slave
// connection is dead, so s is handed to the reaper.
func (d *Distributor) relay(ctx context.Context, client net.Conn, s *Slave) {
	if d.cfg.Verbose {
		log.Printf("slavepool: relay %s via %s started", client.RemoteAddr(), s.Addr)
	}

	err := proxy.Session(ctx, ModeRoundRobin, client, s.Conn)
	switch {
	case err != nil:
		log.Printf("slavepool: relay via %s: %v", s.Addr, err)
	case d.cfg.Verbose:
		log.Printf("slavepool: relay via %s finished", s.Addr)
	}

	select {
	case d.removals <- s:
	case <-ctx.Done():
	}
}

// reap is the only goroutine that removes slaves from the pool.
func (d *Distributor) reap(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-d.removals:
			d.remove(ctx, s)
		}
	}
}

func (d *Distributor) remove(ctx context.Context, s *Slave) {
	if !d.pool.Remove(s) {
		return
	}
	_ = s.Conn.Close()
	metrics.Slaves.Dec()
	if err := d.cfg.Registry.Leave(ctx, s.Addr); err != nil {
		log.Printf("slavepool: registry leave %s: %v", s.Addr, err)
	}
	if d.cfg.Verbose {
		log.Printf("slavepool: removed slave %s (%d pooled)", s.Addr, d.pool.Len())
	}
}

func (d *Distributor) closeAll() {
	ctx := context.Background()
	for _, s := range d.pool.Drain() {
		_ = s.Conn.Close()
		metrics.Slaves.Dec()
		if err := d.cfg.Registry.Leave(ctx, s.Addr); err != nil {
			log.Printf("slavepool: registry leave %s: %v", s.Addr, err)
		}
	}
}
