// Package logging wraps log/slog for structured gateway logs.
//
// New builds a logger from the logging section of config.yaml (level,
// json or text format, stdout or stderr) with service and version
// attached to every record. Components take child loggers via With:
//
//	log := logging.New(cfg.Logging, version)
//	brokerLog := log.With("component", "broker")
//
// Default returns a stdout JSON logger for the window before
// configuration is loaded.
//
// Never log credentials or tokens.
package logging
