// Package socks5 holds the SOCKS5 pieces rsocx needs: target address
// parsing and display, the CONNECT success reply, and the no-auth handshake.
//
// Handshake framing is delegated to github.com/txthinking/socks5. The success
// reply is built by hand because its layout echoes the requested address
// rather than the bound one, and clients depend on the exact bytes.
package socks5
