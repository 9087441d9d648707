package broker

import "errors"

// Domain-specific errors for broker connection management.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidConfig is returned when required configuration is missing
	// or the endpoint cannot be normalized. Configuration errors fail fast
	// and never enter the retry path.
	ErrInvalidConfig = errors.New("broker: invalid configuration")

	// ErrConnectionFailed is returned when a connection attempt fails at
	// the transport level.
	ErrConnectionFailed = errors.New("broker: connection failed")

	// ErrConnectTimeout is returned when the broker does not respond
	// within the configured connect timeout plus grace period.
	ErrConnectTimeout = errors.New("broker: connect timed out")

	// ErrSubscribeFailed is returned when the connection succeeded but the
	// channel subscription did not. A connection without its subscription
	// is useless, so this enters the retry path.
	ErrSubscribeFailed = errors.New("broker: subscribe failed")

	// ErrRetriesExhausted is returned when the retry bound is reached
	// without a successful connection.
	ErrRetriesExhausted = errors.New("broker: retries exhausted")

	// ErrNotConnected is returned when attempting operations that require
	// an established connection.
	ErrNotConnected = errors.New("broker: not connected")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("broker: publish failed")
)
