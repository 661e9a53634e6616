package slavepool

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/rsocx/internal/dialer"
)

// SessionServer serves one SOCKS5 session on c and closes it. It is
// satisfied by *proxy.SOCKS5Server.
type SessionServer interface {
	ServeConn(ctx context.Context, c net.Conn) error
}

type AgentConfig struct {
	// MasterAddr is the master's transfer address.
	MasterAddr string

	// Conns is the number of standing connections to keep. Values below
	// one are treated as one.
	Conns int

	// RetryInterval is the pause after a failed dial.
	RetryInterval time.Duration

	Dialer  dialer.Dialer
	Server  SessionServer
	Verbose bool
}

// Agent is the slave side of distribution mode. Each standing connection
// idles until the master routes a client to it, serves that one SOCKS5
// session and is then replaced.
type Agent struct {
	cfg AgentConfig
}

func NewAgent(cfg AgentConfig) *Agent {
	if cfg.Conns < 1 {
		cfg.Conns = 1
	}
	return &Agent{cfg: cfg}
}

// Run keeps the standing connections open until ctx is canceled, then
// returns nil.
func (a *Agent) Run(ctx context.Context) error {
	log.Printf("slavepool: keeping %d connections to %s", a.cfg.Conns, a.cfg.MasterAddr)

	var g errgroup.Group
	for i := range a.cfg.Conns {
		g.Go(func() error {
			a.worker(ctx, i)
			return nil
		})
	}
	return g.Wait()
}

func (a *Agent) worker(ctx context.Context, id int) {
	for ctx.Err() == nil {
		c, err := a.cfg.Dialer.DialContext(ctx, "tcp", a.cfg.MasterAddr)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("slavepool: conn %d: dial %s: %v", id, a.cfg.MasterAddr, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.cfg.RetryInterval):
			}
			continue
		}

		a.serve(ctx, id, c)
	}
}

// serve waits, without a deadline, for the first byte the master relays
// and only then starts the SOCKS5 session, so the negotiation timeout does
// not count idle time in the pool.
func (a *Agent) serve(ctx context.Context, id int, c net.Conn) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	defer stop()

	bc := &bufferedConn{Conn: c, r: bufio.NewReader(c)}
	if _, err := bc.r.Peek(1); err != nil {
		_ = c.Close()
		if ctx.Err() == nil && a.cfg.Verbose {
			log.Printf("slavepool: conn %d: idle connection closed: %v", id, err)
		}
		return
	}

	err := a.cfg.Server.ServeConn(ctx, bc)
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		log.Printf("slavepool: conn %d: %v", id, err)
	case a.cfg.Verbose:
		log.Printf("slavepool: conn %d: session finished", id)
	}
}

// bufferedConn reads through r so bytes consumed by Peek are not lost.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
