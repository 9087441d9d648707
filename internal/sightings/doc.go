// Package sightings persists tag reads observed by the gateway.
//
// Every validated tag read becomes one sighting row: which reader saw
// which tag, when, at what signal strength, plus the raw payload for
// diagnostics. The store is the local audit trail; the broker carries
// the live feed.
//
// Retention is the operator's concern. PurgeOlderThan exists for
// deployments that cap the sighting log.
package sightings
