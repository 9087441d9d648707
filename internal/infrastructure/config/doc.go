// Package config loads and validates the gateway configuration.
//
// Load layers three sources: hardcoded defaults, the YAML file, then
// TAGBRIDGE_* environment variables, and validates the result before
// returning it. Validation failures name the offending field so a bad
// deployment fails at startup rather than at first use.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//
// Credentials (broker password, InfluxDB token) belong in environment
// variables, not in the file.
package config
