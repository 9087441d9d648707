// TagBridge - RFID Reader Gateway
//
// This is the main entry point for the TagBridge gateway. TagBridge
// fronts one RFID reader over a serial, TCP or MQTT link, decodes its
// framed tag reads, and fans them out to the sighting log, the MQTT
// broker and optional RSSI telemetry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/tagbridge/tagbridge-core/migrations"

	"github.com/tagbridge/tagbridge-core/internal/broker"
	"github.com/tagbridge/tagbridge-core/internal/gateway"
	"github.com/tagbridge/tagbridge-core/internal/infrastructure/config"
	"github.com/tagbridge/tagbridge-core/internal/infrastructure/database"
	"github.com/tagbridge/tagbridge-core/internal/infrastructure/influxdb"
	"github.com/tagbridge/tagbridge-core/internal/infrastructure/logging"
	"github.com/tagbridge/tagbridge-core/internal/sightings"
	"github.com/tagbridge/tagbridge-core/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting TagBridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Sighting log
	store := sightings.NewSQLiteStore(db.DB)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Reader transport
	tr, err := buildTransport(cfg, log)
	if err != nil {
		return fmt.Errorf("building transport: %w", err)
	}

	channel := tagChannel(cfg)

	// Pipeline
	svc := gateway.NewService(gateway.Config{
		ReaderID:      cfg.Reader.ID,
		TransportKind: cfg.Transport.Type,
		Channel:       channel,
	}, tr, store)
	svc.SetLogger(log.With("component", "gateway"))
	if influxClient != nil {
		svc.SetTelemetry(influxClient)
	}

	// Broker session for mirroring reads. An MQTT-attached reader already
	// delivers reads over the broker, so mirroring them back would loop.
	if cfg.Transport.Type != config.TransportMQTT {
		mgr := broker.NewManager()
		mgr.SetLogger(log.With("component", "broker"))

		status, connErr := mgr.Connect(brokerConfig(cfg, channel))
		if connErr != nil {
			// The gateway still records sightings locally without a broker.
			log.Warn("broker unavailable, reads will not be mirrored", "error", connErr)
		} else {
			defer func() {
				log.Info("disconnecting from broker")
				if discErr := mgr.Disconnect(); discErr != nil {
					log.Error("error disconnecting broker", "error", discErr)
				}
			}()
			log.Info("broker connected", "endpoint", status.Endpoint, "channel", status.Channel)
			svc.SetPublisher(mgr)
		}
	}

	log.Info("initialisation complete, reading tags")

	if err := svc.Run(ctx); err != nil {
		return fmt.Errorf("running gateway: %w", err)
	}

	log.Info("TagBridge stopped")
	return nil
}

// buildTransport constructs the reader transport selected in config.
func buildTransport(cfg *config.Config, log *logging.Logger) (transport.Transport, error) {
	tlog := log.With("component", "transport")

	switch cfg.Transport.Type {
	case config.TransportSerial:
		return transport.NewSerial(transport.SerialConfig{
			Device:       cfg.Serial.Device,
			Baud:         cfg.Serial.Baud,
			Address:      cfg.ReaderAddress(),
			ScanInterval: cfg.Reader.ScanInterval,
		}, tlog), nil
	case config.TransportTCP:
		return transport.NewTCP(transport.TCPConfig{
			Addr:         cfg.TCP.Addr,
			DialTimeout:  cfg.TCP.DialTimeout,
			Address:      cfg.ReaderAddress(),
			ScanInterval: cfg.Reader.ScanInterval,
		}, tlog), nil
	case config.TransportMQTT:
		return transport.NewMQTT(brokerConfig(cfg, tagChannel(cfg)), tlog), nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Transport.Type)
	}
}

// brokerConfig maps the YAML broker section onto a broker session config.
func brokerConfig(cfg *config.Config, channel string) broker.Config {
	return broker.Config{
		Endpoint:       cfg.Broker.Endpoint,
		Channel:        channel,
		ClientID:       cfg.Broker.ClientID,
		Username:       cfg.Broker.Auth.Username,
		Password:       cfg.Broker.Auth.Password,
		QoS:            byte(cfg.Broker.QoS),
		MaxAttempts:    cfg.Broker.Retry.MaxAttempts,
		ConnectTimeout: cfg.Broker.Timeouts.Connect,
	}
}

// tagChannel is the channel tag reads travel on: the configured one, or
// the reader's default tag topic.
func tagChannel(cfg *config.Config) string {
	if cfg.Broker.Channel != "" {
		return cfg.Broker.Channel
	}
	return broker.Topics{}.ReaderTags(cfg.Reader.ID)
}

// getConfigPath returns the configuration file path.
// Uses TAGBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TAGBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
