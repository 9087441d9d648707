package transport

import "errors"

// Domain-specific errors for transport lifecycle operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when an operation requires an
	// established link.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrAlreadyConnected is returned when Connect is called on a live
	// transport.
	ErrAlreadyConnected = errors.New("transport: already connected")

	// ErrConnectFailed is returned when the physical link cannot be opened.
	ErrConnectFailed = errors.New("transport: connect failed")
)
