// Package transport connects to RFID reader hardware over serial, TCP
// or MQTT links and turns the inbound byte or message stream into tag
// events.
//
// All variants satisfy the Transport interface: connect and disconnect
// the link, start and stop periodic inventory scanning, trigger a single
// read, and deliver decoded reads on a buffered event channel. Lifecycle
// hooks report link state changes and non-fatal stream errors to the
// caller without coupling the transports to any consumer.
//
// The serial and TCP transports share a read pump that feeds chunks
// through the frame reassembler; delivery never blocks the pump, so a
// slow consumer drops events rather than stalling the link. The MQTT
// variant receives one tag read per message from a remote reader bridge
// and delegates session management to the broker package.
package transport
