// Package influxdb writes tag-read telemetry to InfluxDB v2.
//
// Two measurements matter: tag_reads, one point per validated read with
// signal strength tagged by reader and tag, and link_status, reader
// link up/down transitions per transport. Writes are batched and
// non-blocking; batch failures arrive through the SetOnError callback
// rather than a return value.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTagRead("dock-door-3", "CARD-0042", -80, time.Now())
//
// Telemetry is optional. Connect returns ErrDisabled when the config
// turns it off, and the rest of the gateway runs without it.
//
// All methods are safe for concurrent use.
package influxdb
