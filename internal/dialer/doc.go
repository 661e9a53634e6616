// Package dialer provides the outbound dialer used by rsocx.
//
// Dialers implement a small interface (DialContext) so the SOCKS5 connector
// and the slave agents can be tested against fakes. Only direct dialing is
// provided; outbound legs are never chained through another proxy.
package dialer
