package protocol

import "bytes"

// largeBufferReclaimThreshold is the capacity above which the accumulation
// buffer is discarded and reallocated once fully drained. This prevents
// bursts of line noise from permanently retaining large backing arrays.
const largeBufferReclaimThreshold = 16 * 1024

// Reassembler turns an arbitrarily chunked byte stream into a sequence of
// validated frames.
//
// It owns its accumulation buffer exclusively: bytes transfer in via Push
// and leave only as completed frames. It is not safe for concurrent use;
// a transport drives it from a single read loop, in arrival order.
type Reassembler struct {
	buf bytes.Buffer
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Push appends a chunk to the accumulation buffer and drains every frame
// that is now complete.
//
// Valid frames are delivered to onFrame in wire order. Candidate frames
// that fail validation are consumed and reported to onErr rather than
// silently dropped, since repeated failures may indicate persistent link
// corruption. A chunk may complete zero, one or many frames; a frame may
// span many chunks.
//
// Resynchronization after noise discards exactly one byte per step: a
// larger skip could jump over a valid frame starting mid-buffer.
func (r *Reassembler) Push(chunk []byte, onFrame func(Frame), onErr func(error)) {
	r.buf.Write(chunk)

	for r.buf.Len() >= MinFrameSize {
		data := r.buf.Bytes()

		if data[0] != FrameHeader {
			r.buf.Next(1)
			continue
		}

		need := int(data[1]) + frameOverhead
		if r.buf.Len() < need {
			// Frame incomplete; wait for more data without consuming.
			return
		}

		frame, err := Decode(data[:need])
		r.buf.Next(need)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			continue
		}
		if onFrame != nil {
			onFrame(frame)
		}
	}

	if r.buf.Len() == 0 && r.buf.Cap() > largeBufferReclaimThreshold {
		r.buf = bytes.Buffer{}
	}
}

// Buffered returns the number of bytes waiting for frame completion.
func (r *Reassembler) Buffered() int {
	return r.buf.Len()
}

// Reset discards all buffered bytes. Called when a connection restarts so
// a partial frame from the old link cannot corrupt the new stream.
func (r *Reassembler) Reset() {
	r.buf.Reset()
}
