//go:build !linux

package conn

import (
	"net"
	"time"
)

func setUserTimeout(_ *net.TCPConn, _ time.Duration) error {
	return nil
}
