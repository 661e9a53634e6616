package socks5

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"unicode/utf8"

	txsocks5 "github.com/txthinking/socks5"
)

// AddrType is the SOCKS5 ATYP byte.
type AddrType byte

const (
	AddrIPv4   = AddrType(txsocks5.ATYPIPv4)
	AddrDomain = AddrType(txsocks5.ATYPDomain)
	AddrIPv6   = AddrType(txsocks5.ATYPIPv6)
)

var (
	// ErrInvalidData is returned when a domain address is not valid UTF-8.
	ErrInvalidData = errors.New("socks5: invalid domain")
	// ErrUnsupportedAddress is returned for an unknown ATYP or a raw address
	// of the wrong length.
	ErrUnsupportedAddress = errors.New("socks5: unsupported address")
)

// Address is a parsed SOCKS5 target address. Raw holds 4 bytes for
// AddrIPv4, 16 for AddrIPv6 and the name bytes (without the length prefix)
// for AddrDomain.
type Address struct {
	Type AddrType
	Raw  []byte
}

// ParseAddress builds an Address from an ATYP byte and the raw address bytes
// as they appear on the wire after the length prefix.
func ParseAddress(atyp byte, raw []byte) (Address, error) {
	switch AddrType(atyp) {
	case AddrIPv4:
		if len(raw) != net.IPv4len {
			return Address{}, fmt.Errorf("%w: ipv4 length %d", ErrUnsupportedAddress, len(raw))
		}
	case AddrIPv6:
		if len(raw) != net.IPv6len {
			return Address{}, fmt.Errorf("%w: ipv6 length %d", ErrUnsupportedAddress, len(raw))
		}
	case AddrDomain:
		if len(raw) == 0 || len(raw) > 255 {
			return Address{}, fmt.Errorf("%w: domain length %d", ErrUnsupportedAddress, len(raw))
		}
		if !utf8.Valid(raw) {
			return Address{}, ErrInvalidData
		}
	default:
		return Address{}, fmt.Errorf("%w: atyp %d", ErrUnsupportedAddress, atyp)
	}

	b := make([]byte, len(raw))
	copy(b, raw)
	return Address{Type: AddrType(atyp), Raw: b}, nil
}

// String renders the address for display and for dialing V4 and domain
// targets. IPv6 is rendered as eight uncompressed hextets.
func (a Address) String() string {
	switch a.Type {
	case AddrIPv4:
		return fmt.Sprintf("%d.%d.%d.%d", a.Raw[0], a.Raw[1], a.Raw[2], a.Raw[3])
	case AddrIPv6:
		var b []byte
		for i := 0; i < net.IPv6len; i += 2 {
			if i > 0 {
				b = append(b, ':')
			}
			b = strconv.AppendUint(b, uint64(a.Raw[i])<<8|uint64(a.Raw[i+1]), 16)
		}
		return string(b)
	default:
		return string(a.Raw)
	}
}

// HostPort returns the address joined with port, suitable for net.Dial.
func (a Address) HostPort(port uint16) string {
	if a.Type == AddrIPv6 {
		return (&net.TCPAddr{IP: net.IP(a.Raw), Port: int(port)}).String()
	}
	return net.JoinHostPort(a.String(), strconv.Itoa(int(port)))
}

// RequestAddress extracts the target Address and port from a CONNECT request.
func RequestAddress(req *txsocks5.Request) (Address, uint16, error) {
	if len(req.DstPort) != 2 {
		return Address{}, 0, fmt.Errorf("%w: port length %d", ErrUnsupportedAddress, len(req.DstPort))
	}
	port := uint16(req.DstPort[0])<<8 | uint16(req.DstPort[1])

	raw := req.DstAddr
	if req.Atyp == txsocks5.ATYPDomain {
		// The library keeps the length prefix on domain addresses.
		if len(raw) == 0 {
			return Address{}, 0, fmt.Errorf("%w: empty domain", ErrUnsupportedAddress)
		}
		raw = raw[1:]
	}

	a, err := ParseAddress(req.Atyp, raw)
	if err != nil {
		return Address{}, 0, err
	}
	return a, port, nil
}
