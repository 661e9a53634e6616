// Package slavepool implements distribution mode: the master keeps every
// connection a slave opens on the transfer listener in a pool and hands each
// public client the next pooled connection in round-robin order. Agent is
// the slave half, keeping a fixed number of standing connections open.
package slavepool
