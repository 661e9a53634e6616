package socks5

import (
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	// CmdConnect is the SOCKS5 CONNECT command value.
	CmdConnect = txsocks5.CmdConnect
)

// BuildReply returns the success reply for a CONNECT to a, reporting
// boundPort as the bound port:
//
//	VER(5) REP(0) RSV(0) ATYP [LEN] ADDR PORT_HI PORT_LO
func BuildReply(a Address, boundPort uint16) []byte {
	b := make([]byte, 0, 3+1+1+len(a.Raw)+2)
	b = append(b, txsocks5.Ver, txsocks5.RepSuccess, 0x00, byte(a.Type))
	if a.Type == AddrDomain {
		b = append(b, byte(len(a.Raw)))
	}
	b = append(b, a.Raw...)
	b = append(b, byte(boundPort>>8), byte(boundPort))
	return b
}

// WriteSuccessReply writes BuildReply(a, boundPort) to w.
func WriteSuccessReply(w io.Writer, a Address, boundPort uint16) error {
	if _, err := w.Write(BuildReply(a, boundPort)); err != nil {
		return fmt.Errorf("success reply: %w", err)
	}
	return nil
}

func writeNoAcceptableMethods(w io.Writer) {
	// RFC 1928: 0xFF indicates no acceptable methods.
	_, _ = txsocks5.NewNegotiationReply(0xff).WriteTo(w)
}
