package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTagRead writes one tag read measurement.
//
// This is the primary telemetry path: every validated read becomes a
// point carrying signal strength, tagged by reader and tag for Flux
// queries. The write is non-blocking; data is batched and sent
// asynchronously.
//
// Parameters:
//   - readerID: Identifier of the reader that saw the tag
//   - tagID: Decoded tag identifier
//   - rssi: Signal strength in dBm (0 when the wire carried none)
//   - seenAt: Arrival time of the read
//
// Example:
//
//	client.WriteTagRead("dock-door-3", "CARD-0042", -80, time.Now())
func (c *Client) WriteTagRead(readerID, tagID string, rssi int, seenAt time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"count": 1,
	}
	if rssi != 0 {
		fields["rssi"] = rssi
	}

	point := write.NewPoint(
		"tag_reads",
		map[string]string{
			"reader_id": readerID,
			"tag_id":    tagID,
		},
		fields,
		seenAt,
	)

	c.writeAPI.WritePoint(point)
}

// WriteLinkStatus records a reader link transition.
//
// Used to chart link stability per reader and transport.
//
// Parameters:
//   - readerID: Reader identifier
//   - transport: Link kind ("serial", "tcp", "mqtt")
//   - connected: Whether the link is up after the transition
func (c *Client) WriteLinkStatus(readerID, transport string, connected bool) {
	if !c.IsConnected() {
		return
	}

	up := 0
	if connected {
		up = 1
	}

	point := write.NewPoint(
		"link_status",
		map[string]string{
			"reader_id": readerID,
			"transport": transport,
		},
		map[string]interface{}{
			"up": up,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
