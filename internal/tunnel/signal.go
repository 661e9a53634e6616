package tunnel

import "errors"

// MagicFlag is the control byte asking the slave for one more data leg.
const MagicFlag byte = 0x5a

var (
	// ErrProtocol is returned by Slave when the master sends anything but
	// MagicFlag on the control connection.
	ErrProtocol = errors.New("tunnel: protocol error")

	// ErrControlLost is returned when the control connection can no longer
	// carry signals.
	ErrControlLost = errors.New("tunnel: control connection lost")
)
