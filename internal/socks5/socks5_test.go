package socks5

import (
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestClientDialToServer(t *testing.T) {
	tests := []struct {
		name    string
		address string
		port    uint16
	}{
		{name: "ipv4", address: "127.0.0.1:80", port: 80},
		{name: "domain", address: "example.com:443", port: 443},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				if err := ServerNegotiate(serverConn); err != nil {
					return err
				}

				req, err := ServerReadRequest(serverConn)
				if err != nil {
					return err
				}
				if req.Cmd != CmdConnect {
					return fmt.Errorf("unexpected command: %d", req.Cmd)
				}

				a, port, err := RequestAddress(req)
				if err != nil {
					return err
				}
				if port != tt.port {
					return fmt.Errorf("unexpected port: %d", port)
				}

				return WriteSuccessReply(serverConn, a, 12345)
			})

			rep, err := clientDial(clientConn, tt.address)
			if err != nil {
				t.Fatal(err)
			}
			if got := int(rep.BndPort[0])<<8 | int(rep.BndPort[1]); got != 12345 {
				t.Fatalf("expected bound port 12345 got %d", got)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestServerNegotiateRejectsAuthOnlyClient(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		// VER=5, NMETHODS=1, METHODS=[username/password]
		if _, err := clientConn.Write([]byte{0x05, 0x01, 0x02}); err != nil {
			return err
		}
		reply := make([]byte, 2)
		if _, err := io.ReadFull(clientConn, reply); err != nil {
			return err
		}
		if reply[1] != 0xff {
			return fmt.Errorf("expected no acceptable methods, got %d", reply[1])
		}
		return nil
	})

	err := ServerNegotiate(serverConn)
	if !errors.Is(err, ErrNoAcceptableMethod) {
		t.Fatalf("expected ErrNoAcceptableMethod, got %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
