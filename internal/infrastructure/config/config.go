package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for TagBridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Reader    ReaderConfig    `yaml:"reader"`
	Transport TransportConfig `yaml:"transport"`
	Serial    SerialConfig    `yaml:"serial"`
	TCP       TCPConfig       `yaml:"tcp"`
	Broker    BrokerConfig    `yaml:"broker"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ReaderConfig identifies the reader this gateway fronts.
type ReaderConfig struct {
	// ID is the stable reader identifier used in channel names and
	// stored sightings.
	ID string `yaml:"id"`

	// Name is a human-readable label for logs and status payloads.
	Name string `yaml:"name"`

	// Address is the reader's bus address used in outbound command frames.
	Address int `yaml:"address"`

	// ScanInterval is the period between inventory polls while scanning.
	ScanInterval time.Duration `yaml:"scan_interval"`
}

// TransportConfig selects how the reader is attached.
type TransportConfig struct {
	// Type is one of "serial", "tcp" or "mqtt".
	Type string `yaml:"type"`
}

// SerialConfig contains serial link settings, used when transport.type
// is "serial".
type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// TCPConfig contains TCP link settings, used when transport.type is "tcp".
type TCPConfig struct {
	Addr        string        `yaml:"addr"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// BrokerConfig contains MQTT broker session settings. The broker carries
// outbound tag publications; when transport.type is "mqtt" it is also the
// inbound reader link.
type BrokerConfig struct {
	// Endpoint is the broker address: scheme://host:port, a bare
	// host:port, or a bare hostname. Missing parts get tcp:// and :1883.
	Endpoint string `yaml:"endpoint"`

	// Channel is the channel tag reads are published on (and subscribed
	// to for MQTT-attached readers). Empty selects the reader's default
	// tag channel.
	Channel string `yaml:"channel"`

	ClientID string         `yaml:"client_id"`
	Auth     BrokerAuth     `yaml:"auth"`
	QoS      int            `yaml:"qos"`
	Retry    BrokerRetry    `yaml:"retry"`
	Timeouts BrokerTimeouts `yaml:"timeouts"`
}

// BrokerAuth contains broker authentication credentials.
type BrokerAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// BrokerRetry bounds the broker connection retry sequence.
type BrokerRetry struct {
	// MaxAttempts is the total connection attempts before the sequence
	// is abandoned. 0 selects the default of 5.
	MaxAttempts int `yaml:"max_attempts"`
}

// BrokerTimeouts contains per-operation broker timeouts.
type BrokerTimeouts struct {
	Connect time.Duration `yaml:"connect"`
}

// DatabaseConfig contains SQLite database settings for the sighting log.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for RSSI telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Transport type values accepted by TransportConfig.
const (
	TransportSerial = "serial"
	TransportTCP    = "tcp"
	TransportMQTT   = "mqtt"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TAGBRIDGE_SECTION_KEY
// For example: TAGBRIDGE_DATABASE_PATH, TAGBRIDGE_BROKER_ENDPOINT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Reader: ReaderConfig{
			ID:           "reader-001",
			Name:         "TagBridge Reader",
			Address:      1,
			ScanInterval: 500 * time.Millisecond,
		},
		Transport: TransportConfig{
			Type: TransportSerial,
		},
		Serial: SerialConfig{
			Device: "/dev/ttyUSB0",
			Baud:   57600,
		},
		TCP: TCPConfig{
			DialTimeout: 5 * time.Second,
		},
		Broker: BrokerConfig{
			Endpoint: "localhost",
			QoS:      1,
			Retry: BrokerRetry{
				MaxAttempts: 5,
			},
			Timeouts: BrokerTimeouts{
				Connect: 10 * time.Second,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/tagbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TAGBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Reader
	if v := os.Getenv("TAGBRIDGE_READER_ID"); v != "" {
		cfg.Reader.ID = v
	}
	if v := os.Getenv("TAGBRIDGE_TRANSPORT_TYPE"); v != "" {
		cfg.Transport.Type = v
	}

	// Links
	if v := os.Getenv("TAGBRIDGE_SERIAL_DEVICE"); v != "" {
		cfg.Serial.Device = v
	}
	if v := os.Getenv("TAGBRIDGE_TCP_ADDR"); v != "" {
		cfg.TCP.Addr = v
	}

	// Broker
	if v := os.Getenv("TAGBRIDGE_BROKER_ENDPOINT"); v != "" {
		cfg.Broker.Endpoint = v
	}
	if v := os.Getenv("TAGBRIDGE_BROKER_USERNAME"); v != "" {
		cfg.Broker.Auth.Username = v
	}
	if v := os.Getenv("TAGBRIDGE_BROKER_PASSWORD"); v != "" {
		cfg.Broker.Auth.Password = v
	}

	// Database
	if v := os.Getenv("TAGBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("TAGBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("TAGBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Reader.ID == "" {
		errs = append(errs, "reader.id is required")
	}
	if c.Reader.Address < 0 || c.Reader.Address > 255 {
		errs = append(errs, "reader.address must be between 0 and 255")
	}

	switch c.Transport.Type {
	case TransportSerial:
		if c.Serial.Device == "" {
			errs = append(errs, "serial.device is required for the serial transport")
		}
	case TransportTCP:
		if c.TCP.Addr == "" {
			errs = append(errs, "tcp.addr is required for the tcp transport")
		}
	case TransportMQTT:
		if c.Broker.Endpoint == "" {
			errs = append(errs, "broker.endpoint is required for the mqtt transport")
		}
	default:
		errs = append(errs, fmt.Sprintf("transport.type must be %q, %q or %q",
			TransportSerial, TransportTCP, TransportMQTT))
	}

	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		errs = append(errs, "broker.qos must be 0, 1, or 2")
	}
	if c.Broker.Retry.MaxAttempts < 0 {
		errs = append(errs, "broker.retry.max_attempts must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set TAGBRIDGE_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReaderAddress returns the reader bus address as a wire byte.
func (c *Config) ReaderAddress() byte {
	return byte(c.Reader.Address)
}

// BusyTimeout returns the SQLite busy timeout as a Duration.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Database.BusyTimeout) * time.Second
}

// FlushInterval returns the InfluxDB flush interval in milliseconds as
// the client expects, defaulting to one second.
func (c *Config) FlushInterval() uint {
	if c.InfluxDB.FlushInterval <= 0 {
		return 1000
	}
	return uint(c.InfluxDB.FlushInterval)
}
