// Package gateway runs the read pipeline: it drives a reader transport,
// consumes its tag events, and fans each validated read out to the
// configured sinks.
//
// Sinks are optional except the sighting log. A broker publisher mirrors
// reads onto the reader's tag channel, and a telemetry writer records
// RSSI and link transitions. Sink failures are logged and never stall
// the pipeline; the next read still flows.
package gateway
