package influxdb

import "errors"

// Sentinel errors for telemetry operations, matched with errors.Is.
var (
	// ErrDisabled is returned by Connect when telemetry is turned off in
	// configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected indicates the client is closed or was never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed indicates a synchronous write failed. Batched write
	// failures arrive through the SetOnError callback instead.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
