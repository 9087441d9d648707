package protocol

import "errors"

// Domain-specific errors for frame decoding.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrShortFrame is returned when a candidate frame has fewer bytes
	// than the minimum legal frame size.
	ErrShortFrame = errors.New("protocol: frame too short")

	// ErrBadHeader is returned when the first byte is not the protocol header.
	ErrBadHeader = errors.New("protocol: bad frame header")

	// ErrBadLength is returned when the length byte is below the legal
	// minimum or disagrees with the number of bytes supplied.
	ErrBadLength = errors.New("protocol: bad frame length")

	// ErrChecksum is returned when the frame checksum does not validate.
	ErrChecksum = errors.New("protocol: checksum mismatch")
)
