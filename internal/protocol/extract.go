package protocol

import (
	"encoding/hex"
	"strings"
	"time"
)

// Inventory-report command codes. Frames carrying any other command are
// normal protocol traffic (acknowledgements, settings responses) and do
// not describe tags.
const (
	// CmdInventory is the standard tag-inventory report.
	CmdInventory = 0x89

	// CmdInventoryBuffered is the buffered tag-inventory report.
	CmdInventoryBuffered = 0x8B
)

// signalSuffixSize is the number of trailing payload bytes reserved for
// signal data; the tag identifier occupies everything before it.
const signalSuffixSize = 2

// TagEvent is one normalized tag observation.
//
// ID is either the decoded printable-text identifier or an uppercase
// hexadecimal encoding of the raw identifier bytes. Immutable once
// constructed; produced exactly once per validated inbound unit.
type TagEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	RSSI      int       `json:"rssi,omitempty"`
	Raw       []byte    `json:"raw,omitempty"`
}

// IsInventoryReport reports whether the frame carries a tag-inventory report.
func IsInventoryReport(f Frame) bool {
	return f.Command == CmdInventory || f.Command == CmdInventoryBuffered
}

// ExtractTag interprets a validated inventory-report frame as a tag event.
//
// The identifier is the payload minus the trailing signal suffix, decoded
// as printable text when possible and uppercase hex otherwise. RSSI is the
// negation of the designated signal byte: the wire format carries signal
// strength as a positive attenuation magnitude. The timestamp is the
// arrival time; the wire carries none.
//
// Frames whose command is not an inventory report return ok=false and are
// ignored at this layer.
func ExtractTag(f Frame, arrived time.Time) (TagEvent, bool) {
	if !IsInventoryReport(f) {
		return TagEvent{}, false
	}

	idEnd := len(f.Payload) - signalSuffixSize
	if idEnd < 0 {
		idEnd = 0
	}

	raw := make([]byte, len(f.Payload))
	copy(raw, f.Payload)

	ev := TagEvent{
		ID:        tagIdentifier(f.Payload[:idEnd]),
		Timestamp: arrived,
		Raw:       raw,
	}

	// Short payloads still carry a signal byte; an empty payload carries none.
	switch {
	case len(f.Payload) >= signalSuffixSize:
		ev.RSSI = -int(f.Payload[len(f.Payload)-signalSuffixSize])
	case len(f.Payload) == 1:
		ev.RSSI = -int(f.Payload[0])
	}

	return ev, true
}

// TagFromBytes builds a tag event from an already-deframed payload, as
// delivered by message transports that carry one tag read per message.
// The payload is interpreted like an inventory-report frame payload.
func TagFromBytes(payload []byte, arrived time.Time) TagEvent {
	ev, _ := ExtractTag(Frame{
		Header:  FrameHeader,
		Command: CmdInventory,
		Payload: payload,
	}, arrived)
	return ev
}

// tagIdentifier decodes identifier bytes as printable text when every byte
// is printable ASCII or common whitespace, falling back to uppercase hex.
func tagIdentifier(id []byte) string {
	if len(id) > 0 && isPrintable(id) {
		return string(id)
	}
	return strings.ToUpper(hex.EncodeToString(id))
}

func isPrintable(data []byte) bool {
	for _, b := range data {
		if b >= 0x20 && b <= 0x7E {
			continue
		}
		switch b {
		case '\t', '\n', '\r':
			continue
		}
		return false
	}
	return true
}
