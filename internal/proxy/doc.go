// Package proxy implements the terminal SOCKS5 side of rsocx and the
// bidirectional relay every mode shares.
//
// A SOCKS5 session is served on any conn (a locally accepted client, or a
// data leg handed over by the master): negotiate no-auth, read the CONNECT
// request, dial the target, write the reply, then relay.
package proxy
