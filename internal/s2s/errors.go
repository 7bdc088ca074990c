package s2s

import "errors"

var (
	// ErrSessionClosed is returned when an operation is attempted on
	// a session that has been destroyed.
	ErrSessionClosed = errors.New("s2s: session closed")

	// ErrNotConnected is returned when an operation needs a bound
	// transport before Connect has been called.
	ErrNotConnected = errors.New("s2s: not connected")
)
