package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/txthinking/socks5"

	"github.com/die-net/rsocx/internal/conn"
	"github.com/die-net/rsocx/internal/dialer"
	"github.com/die-net/rsocx/internal/testutil"
)

func newTestServer(t *testing.T, ctx context.Context) (*SOCKS5Server, net.Listener) {
	t.Helper()

	cfg := Config{
		NegotiationTimeout: 2 * time.Second,
		Dialer:             dialer.NewDirectDialer(dialer.Config{DialTimeout: 2 * time.Second}),
	}

	ln, err := conn.ListenTCP(ctx, "tcp", "127.0.0.1:0", conn.Options{})
	if err != nil {
		t.Fatal(err)
	}

	srv := NewSOCKS5Server(ctx, cfg, ModeLocal, true)
	go func() { _ = srv.Serve(ln) }()
	return srv, ln
}

func TestSOCKS5ConnectDirect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	_, ln := newTestServer(t, ctx)
	defer ln.Close()

	client, err := socks5.NewClient(ln.Addr().String(), "", "", 2, 0)
	if err != nil {
		t.Fatal(err)
	}

	c, err := client.Dial("tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	testutil.AssertEcho(t, c, c, []byte("hello"))
}

func TestSOCKS5ServeReturnsNilOnClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := conn.ListenTCP(ctx, "tcp", "127.0.0.1:0", conn.Options{})
	if err != nil {
		t.Fatal(err)
	}
	srv := NewSOCKS5Server(ctx, Config{}, ModeLocal, false)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	_ = ln.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	case <-ctx.Done():
		t.Fatal("Serve did not return")
	}
}

func TestSOCKS5ServeConnDropsBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		request []byte
		wantErr error
	}{
		{
			name:    "bind command",
			request: []byte{0x05, 0x02, 0x00, 0x01, 127, 0, 0, 1, 0, 80},
			wantErr: ErrUnsupportedCommand,
		},
		{
			name:    "invalid utf8 domain",
			request: []byte{0x05, 0x01, 0x00, 0x03, 2, 0xff, 0xfe, 0, 80},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			client, server := testutil.TCPPair(t)
			defer client.Close()

			srv := NewSOCKS5Server(ctx, Config{
				NegotiationTimeout: 2 * time.Second,
				Dialer:             dialer.NewDirectDialer(dialer.Config{}),
			}, ModeLocal, false)

			done := make(chan error, 1)
			go func() { done <- srv.ServeConn(ctx, server) }()

			if _, err := client.Write([]byte{0x05, 0x01, 0x00}); err != nil {
				t.Fatal(err)
			}
			neg := make([]byte, 2)
			if _, err := io.ReadFull(client, neg); err != nil {
				t.Fatal(err)
			}
			if _, err := client.Write(tt.request); err != nil {
				t.Fatal(err)
			}

			err := <-done
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
			rest, err := io.ReadAll(client)
			if err != nil {
				t.Fatal(err)
			}
			if len(rest) != 0 {
				t.Fatalf("expected silent drop, got % x", rest)
			}
		})
	}
}
