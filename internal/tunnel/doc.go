// Package tunnel implements the reverse tunnel between a master and a single
// slave.
//
// The slave keeps one control connection open to the master's transfer
// listener. For every client the master accepts on its public listener it
// writes one MagicFlag byte on the control connection; the slave answers by
// dialing the transfer listener again, and the master pairs that next
// accepted connection (the data leg) with the client. The slave then serves
// SOCKS5 on the data leg.
//
// Legs are matched to clients purely by accept order. This holds only while
// the slave answers signals one at a time, in order, which Slave does.
package tunnel
