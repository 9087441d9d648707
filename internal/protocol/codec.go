package protocol

import "fmt"

// Wire layout constants for reader frames.
//
// A frame on the wire is:
//
//	[0]      header (0xA0)
//	[1]      length = address + command + payload + checksum byte count
//	[2]      reader address
//	[3]      command code
//	[4..n-2] payload
//	[n-1]    checksum
//
// Total frame size is length + 2 (header and length bytes are not counted
// by the length field itself).
const (
	// FrameHeader is the fixed first byte of every reader frame.
	FrameHeader = 0xA0

	// MinFrameSize is the smallest legal frame: header, length, address,
	// command and checksum with an empty payload.
	MinFrameSize = 5

	// minLength is the smallest legal value of the length byte
	// (address + command + checksum).
	minLength = 3

	// frameOverhead is the number of wire bytes not counted by the length
	// byte (the header and the length byte itself).
	frameOverhead = 2
)

// Frame is one complete protocol unit exchanged with a reader.
//
// Payload is an owned copy; decoding never aliases the input buffer.
type Frame struct {
	Header   byte
	Length   byte
	Address  byte
	Command  byte
	Payload  []byte
	Checksum byte
}

// Size returns the total wire size of the frame in bytes.
func (f Frame) Size() int {
	return int(f.Length) + frameOverhead
}

// Encode builds a wire frame for the given address, command and payload.
//
// The checksum is computed with the same policy Decode validates, so
// Decode(Encode(...)) always round-trips.
func Encode(address, command byte, payload []byte) []byte {
	length := frameOverhead + len(payload) + 1 // address + command + payload + checksum
	frame := make([]byte, 0, length+frameOverhead)
	frame = append(frame, FrameHeader, byte(length), address, command)
	frame = append(frame, payload...)
	frame = append(frame, checksum(frame[1:]))
	return frame
}

// Decode validates a candidate frame and returns its parsed form.
//
// Decode is total: any input either yields a Frame or a sentinel-wrapped
// error describing why it is invalid. The input slice is never mutated.
func Decode(data []byte) (Frame, error) {
	if len(data) < MinFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrShortFrame, len(data), MinFrameSize)
	}
	if data[0] != FrameHeader {
		return Frame{}, fmt.Errorf("%w: 0x%02X", ErrBadHeader, data[0])
	}

	length := int(data[1])
	if length < minLength {
		return Frame{}, fmt.Errorf("%w: length byte %d below minimum %d", ErrBadLength, length, minLength)
	}
	if len(data) != length+frameOverhead {
		return Frame{}, fmt.Errorf("%w: length byte %d expects %d bytes, got %d",
			ErrBadLength, length, length+frameOverhead, len(data))
	}

	want := data[len(data)-1]
	if got := checksum(data[1 : len(data)-1]); got != want {
		return Frame{}, fmt.Errorf("%w: computed 0x%02X, frame carries 0x%02X", ErrChecksum, got, want)
	}

	payload := make([]byte, length-minLength)
	copy(payload, data[4:len(data)-1])

	return Frame{
		Header:   data[0],
		Length:   data[1],
		Address:  data[2],
		Command:  data[3],
		Payload:  payload,
		Checksum: want,
	}, nil
}

// checksum computes the two's complement of the modular byte sum.
// Callers pass the length byte through the final payload byte.
func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum + 1
}
