package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/rsocx/internal/conn"
	"github.com/die-net/rsocx/internal/dialer"
	"github.com/die-net/rsocx/internal/metrics"
	"github.com/die-net/rsocx/internal/proxy"
	"github.com/die-net/rsocx/internal/registry"
	"github.com/die-net/rsocx/internal/slavepool"
	"github.com/die-net/rsocx/internal/tunnel"
)

func main() {
	err := run(os.Args[1:])
	var ue usageError
	switch {
	case err == nil:
	case errors.Is(err, pflag.ErrHelp):
	case errors.As(err, &ue):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// usageError marks command-line mistakes, which exit with status 2. The
// message and usage have already been printed.
type usageError struct {
	error
}

func (e usageError) Unwrap() error { return e.error }

type mode int

const (
	modeMaster mode = iota + 1
	modeDistributor
	modeSlave
	modeAgent
	modeLocal
)

func (m mode) String() string {
	switch m {
	case modeMaster:
		return "master"
	case modeDistributor:
		return "round-robin master"
	case modeSlave:
		return "slave"
	case modeAgent:
		return "round-robin slave"
	case modeLocal:
		return "local"
	default:
		return "unknown"
	}
}

type options struct {
	mode mode

	transfer   string
	server     string
	bind       string
	reverse    string
	roundRobin bool

	slaveConns    int
	retryInterval time.Duration

	dialTimeout        time.Duration
	negotiationTimeout time.Duration
	socket             conn.Options

	metricsListen string

	redis registry.RedisOptions

	verbose bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := pflag.NewFlagSet("rsocx", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false

	var (
		o            options
		tcpKeepAlive string
	)

	fs.StringVarP(&o.transfer, "transfer", "t", "", "Master: address slaves connect to (e.g. 0.0.0.0:8000)")
	fs.StringVarP(&o.server, "server", "s", "", "Master: public SOCKS5 address clients connect to (e.g. 0.0.0.0:1080)")
	fs.StringVarP(&o.bind, "bind", "l", "", "Local: serve SOCKS5 directly on this address")
	fs.StringVarP(&o.reverse, "reverse", "r", "", "Slave: master transfer address to connect to")
	fs.BoolVar(&o.roundRobin, "round-robin", false, "Distribute clients across many slave connections (master and slave)")
	fs.IntVar(&o.slaveConns, "slave-conns", 4, "Round-robin slave: standing connections to keep open")
	fs.DurationVar(&o.retryInterval, "retry-interval", 5*time.Second, "Round-robin slave: delay before redialing the master after a failure")
	fs.DurationVar(&o.dialTimeout, "dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
	fs.DurationVar(&o.negotiationTimeout, "negotiation-timeout", 10*time.Second, "Timeout for the SOCKS5 handshake and for a slave's data leg to arrive")
	fs.StringVar(&tcpKeepAlive, "tcp-keepalive", "10:10:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
	fs.DurationVar(&o.socket.UserTimeout, "tcp-user-timeout", 0, "TCP_USER_TIMEOUT for every connection (Linux only). 0 disables.")
	fs.StringVar(&o.metricsListen, "metrics-listen", "", "Address serving Prometheus /metrics and /healthz. Empty disables.")
	fs.StringVar(&o.redis.Addr, "redis-addr", "", "Master: Redis address to publish slave membership to. Empty disables.")
	fs.StringVar(&o.redis.Password, "redis-password", "", "Redis password")
	fs.IntVar(&o.redis.DB, "redis-db", 0, "Redis database number")
	fs.StringVar(&o.redis.Key, "redis-key", registry.DefaultRedisKey, "Redis hash holding slave membership")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable per-connection logging")

	// pflag prints its own parse errors and the usage.
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, usageError{err}
	}

	usage := func(err error) error {
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return usageError{err}
	}

	if fs.NArg() > 0 {
		return nil, usage(fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " ")))
	}

	ka, err := parseTCPKeepAlive(tcpKeepAlive)
	if err != nil {
		return nil, usage(fmt.Errorf("invalid --tcp-keepalive: %w", err))
	}
	o.socket.KeepAlive = ka

	if o.mode, err = selectMode(&o); err != nil {
		return nil, usage(err)
	}
	if o.mode == modeAgent && o.slaveConns < 1 {
		return nil, usage(errors.New("--slave-conns must be > 0"))
	}
	if o.socket.UserTimeout < 0 {
		return nil, usage(errors.New("--tcp-user-timeout must be >= 0"))
	}

	return &o, nil
}

func selectMode(o *options) (mode, error) {
	var modes []mode
	if o.transfer != "" || o.server != "" {
		if o.transfer == "" || o.server == "" {
			return 0, errors.New("master mode needs both --transfer and --server")
		}
		if o.roundRobin {
			modes = append(modes, modeDistributor)
		} else {
			modes = append(modes, modeMaster)
		}
	}
	if o.reverse != "" {
		if o.roundRobin {
			modes = append(modes, modeAgent)
		} else {
			modes = append(modes, modeSlave)
		}
	}
	if o.bind != "" {
		if o.roundRobin {
			return 0, errors.New("--round-robin does not apply to --bind")
		}
		modes = append(modes, modeLocal)
	}

	switch len(modes) {
	case 0:
		return 0, errors.New("no mode selected (set --transfer and --server, --reverse, or --bind)")
	case 1:
		return modes[0], nil
	default:
		return 0, fmt.Errorf("only one mode may be selected, got %s and %s", modes[0], modes[1])
	}
}

func run(args []string) error {
	o, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.metricsListen != "" {
		srv := &http.Server{Handler: metrics.Handler(), ReadHeaderTimeout: 10 * time.Second}
		ln, err := conn.ListenTCP(ctx, "tcp", o.metricsListen, o.socket)
		if err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = srv.Close()
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics serve: %w", err)
			}
			return nil
		})
		log.Printf("metrics listening on %s", o.metricsListen)
	}

	d := dialer.NewDirectDialer(dialer.Config{DialTimeout: o.dialTimeout, Socket: o.socket})
	proxyCfg := proxy.Config{NegotiationTimeout: o.negotiationTimeout, Dialer: d}

	switch o.mode {
	case modeMaster, modeDistributor:
		err = runMaster(ctx, g, o)
	case modeSlave:
		s := tunnel.NewSlave(tunnel.SlaveConfig{
			MasterAddr: o.reverse,
			Dialer:     d,
			Handler:    proxy.NewSOCKS5Server(ctx, proxyCfg, tunnel.ModeTunnel, o.verbose),
			Verbose:    o.verbose,
		})
		g.Go(func() error {
			if err := s.Run(ctx); err != nil {
				return fmt.Errorf("slave: %w", err)
			}
			return nil
		})
	case modeAgent:
		a := slavepool.NewAgent(slavepool.AgentConfig{
			MasterAddr:    o.reverse,
			Conns:         o.slaveConns,
			RetryInterval: o.retryInterval,
			Dialer:        d,
			Server:        proxy.NewSOCKS5Server(ctx, proxyCfg, slavepool.ModeRoundRobin, o.verbose),
			Verbose:       o.verbose,
		})
		g.Go(func() error { return a.Run(ctx) })
	case modeLocal:
		err = runLocal(ctx, g, o, proxyCfg)
	}
	if err != nil {
		stop()
		_ = g.Wait()
		return err
	}

	log.Printf("running as %s", o.mode)
	err = g.Wait()

	log.Print("shutting down")
	return err
}

func runMaster(ctx context.Context, g *errgroup.Group, o *options) error {
	reg, err := openRegistry(ctx, o.redis)
	if err != nil {
		return err
	}

	transfer, err := conn.ListenTCP(ctx, "tcp", o.transfer, o.socket)
	if err != nil {
		closeRegistry(reg)
		return fmt.Errorf("transfer listen: %w", err)
	}
	public, err := conn.ListenTCP(ctx, "tcp", o.server, o.socket)
	if err != nil {
		_ = transfer.Close()
		closeRegistry(reg)
		return fmt.Errorf("server listen: %w", err)
	}
	context.AfterFunc(ctx, func() {
		_ = transfer.Close()
		_ = public.Close()
	})

	log.Printf("transfer listening on %s", o.transfer)
	log.Printf("socks5 proxy listening on %s", o.server)

	g.Go(func() error {
		defer closeRegistry(reg)

		var err error
		if o.mode == modeDistributor {
			dist := slavepool.NewDistributor(slavepool.Config{Registry: reg, Verbose: o.verbose})
			err = dist.Serve(ctx, transfer, public)
		} else {
			m := tunnel.NewMaster(tunnel.Config{LegTimeout: o.negotiationTimeout, Registry: reg, Verbose: o.verbose})
			err = m.Serve(ctx, transfer, public)
		}
		if err != nil {
			return fmt.Errorf("master: %w", err)
		}
		return nil
	})
	return nil
}

func runLocal(ctx context.Context, g *errgroup.Group, o *options, cfg proxy.Config) error {
	ln, err := conn.ListenTCP(ctx, "tcp", o.bind, o.socket)
	if err != nil {
		return fmt.Errorf("socks5 listen: %w", err)
	}
	s5 := proxy.NewSOCKS5Server(ctx, cfg, proxy.ModeLocal, o.verbose)
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := s5.Serve(ln); err != nil {
			return fmt.Errorf("socks5 serve: %w", err)
		}
		return nil
	})

	log.Printf("socks5 proxy listening on %s", o.bind)
	return nil
}

// openRegistry connects to Redis when configured and clears membership left
// behind by a previous run.
func openRegistry(ctx context.Context, opts registry.RedisOptions) (registry.Registry, error) {
	if opts.Addr == "" {
		return registry.Nop{}, nil
	}

	r, err := registry.NewRedis(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := r.Reset(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	log.Printf("publishing slave membership to redis %s key %s", opts.Addr, opts.Key)
	return r, nil
}

func closeRegistry(r registry.Registry) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "":
		return net.KeepAliveConfig{}, errors.New("empty")
	case "on":
		return net.KeepAliveConfig{Enable: true}, nil
	case "off":
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
