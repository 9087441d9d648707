// Package protocol implements the binary reader protocol spoken by
// serial and TCP attached RFID readers.
//
// This package manages:
//   - Frame encoding and validation (header, length, checksum)
//   - Stream reassembly from arbitrarily chunked byte streams
//   - Tag extraction from inventory-report frames
//
// # Wire Format
//
// Every frame is [0xA0, length, address, command, payload..., checksum]
// where length counts everything after the length byte plus the checksum,
// and the checksum is the two's complement of the byte sum from the length
// byte through the final payload byte. The minimum frame is 5 bytes.
//
// # Stream Handling
//
// Physical links deliver bytes in arbitrary chunks: one chunk may hold
// several frames, and one frame may span several chunks. Reassembler
// accumulates chunks and emits each frame exactly once, resynchronizing
// one byte at a time after line noise. Invalid candidate frames are
// reported to the caller rather than dropped, since a run of checksum
// failures usually means the link itself is corrupting data.
//
// The package is pure: it performs no I/O and holds no references to
// caller buffers after a call returns.
package protocol
