// Package broker manages MQTT broker connectivity for tagbridge.
//
// This package manages:
//   - Connection establishment with validated, normalized configuration
//   - Manual exponential-backoff retry with a bounded attempt count
//   - Status snapshots and ordered status/message observer notification
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//
// # Reconnection Model
//
// The paho library's auto-reconnect and connect-retry are disabled on
// purpose. Reconnection lives here as an explicit state machine
// (Idle → Connecting → Connected → Retrying/Disconnecting → Idle, with a
// terminal Failed state) so backoff timing, attempt accounting and status
// reporting are exact rather than layered on top of an opaque library
// mechanism. Retry delays follow min(1s * 2^(attempt-1), 30s).
//
// Transient per-attempt failures surface only through status observers; a
// long retry sequence never produces an error per attempt. The terminal
// error of a sequence (validation failure, exhausted retries, or the most
// recent failure when Disconnect interrupted the sequence) is returned
// from Connect.
//
// # Usage
//
//	mgr := broker.NewManager()
//	unsubscribe := mgr.OnMessage(func(channel string, payload []byte) {
//	    log.Printf("received: %s = %s", channel, payload)
//	})
//	defer unsubscribe()
//
//	status, err := mgr.Connect(broker.Config{
//	    Endpoint: "broker.example.com",
//	    Channel:  broker.Topics{}.AllReaderTags(),
//	})
package broker
