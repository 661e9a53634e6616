// Package conn holds socket-level plumbing shared by every rsocx mode:
// listeners that apply TCP keepalive (and, on Linux, TCP_USER_TIMEOUT) to
// accepted connections, and accept helpers with deadlines.
package conn
