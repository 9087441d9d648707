package broker

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Retry and connection timing defaults. The backoff base and cap are part
// of the retry contract: delay = min(base * 2^(attempt-1), cap).
const (
	backoffBase = 1 * time.Second
	backoffCap  = 30 * time.Second

	// defaultMaxAttempts is the retry bound applied when the config does
	// not set one.
	defaultMaxAttempts = 5

	// defaultConnectTimeout is the per-attempt connect timeout.
	defaultConnectTimeout = 10 * time.Second

	// connectGrace is added to the connect timeout before an attempt is
	// declared dead; it absorbs scheduling jitter between the dial and
	// the broker acknowledgement.
	connectGrace = 2 * time.Second

	// defaultKeepAlive is the MQTT keepalive interval.
	defaultKeepAlive = 60 * time.Second

	// defaultScheme is assumed when the endpoint carries no scheme.
	defaultScheme = "tcp"

	// defaultPort is the broker port assumed when the endpoint carries none.
	defaultPort = "1883"

	// subscribeTimeout bounds the channel subscription after a successful
	// connect.
	subscribeTimeout = 5 * time.Second

	// publishTimeout bounds publish acknowledgement waits.
	publishTimeout = 5 * time.Second

	// disconnectQuiesce is the milliseconds paho waits for in-flight
	// operations during a graceful disconnect.
	disconnectQuiesce = 1000

	// maxQoS is the maximum MQTT QoS level.
	maxQoS = 2

	// clientIDSuffixLen is how many UUID characters a generated client ID keeps.
	clientIDSuffixLen = 8
)

// Config describes one broker connection. It is immutable for the lifetime
// of a connect sequence; passing a new Config to Connect starts a fresh
// sequence.
type Config struct {
	// Endpoint is the broker address. A scheme and port are optional;
	// "tcp" and 1883 are assumed.
	Endpoint string

	// Channel is the topic the manager subscribes to for inbound messages.
	Channel string

	// ClientID identifies this client to the broker. Generated when empty.
	ClientID string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// QoS is the quality-of-service level for subscription and publish.
	QoS byte

	// KeepAlive is the MQTT keepalive interval. Defaults to 60s.
	KeepAlive time.Duration

	// ConnectTimeout bounds each connection attempt. Defaults to 10s.
	ConnectTimeout time.Duration

	// MaxAttempts is the retry bound before a connect sequence fails
	// permanently. Defaults to 5.
	MaxAttempts int
}

// normalize validates required fields, fills defaults and rewrites the
// endpoint into fully qualified form. A validation failure is a
// configuration error, never a connection error.
func (c Config) normalize() (Config, error) {
	if strings.TrimSpace(c.Channel) == "" {
		return c, fmt.Errorf("%w: channel is required", ErrInvalidConfig)
	}

	endpoint, err := normalizeEndpoint(c.Endpoint)
	if err != nil {
		return c, err
	}
	c.Endpoint = endpoint

	if c.ClientID == "" {
		c.ClientID = "tagbridge-" + uuid.NewString()[:clientIDSuffixLen]
	}
	if c.QoS > maxQoS {
		return c, fmt.Errorf("%w: QoS %d (must be 0, 1, or 2)", ErrInvalidConfig, c.QoS)
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = defaultKeepAlive
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}

	return c, nil
}

// normalizeEndpoint rewrites a broker address into scheme://host:port form.
//
// A missing scheme defaults to tcp, a missing port to 1883. The host must
// be non-empty and must not be a bare number: a purely numeric label is
// almost always a mistyped port rather than a hostname.
func normalizeEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}

	if !strings.Contains(endpoint, "://") {
		endpoint = defaultScheme + "://" + endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: endpoint %q: %w", ErrInvalidConfig, endpoint, err)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: endpoint %q has no host", ErrInvalidConfig, endpoint)
	}
	if _, err := strconv.Atoi(host); err == nil {
		return "", fmt.Errorf("%w: endpoint host %q is purely numeric", ErrInvalidConfig, host)
	}

	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	u.Host = net.JoinHostPort(host, port)

	return u.String(), nil
}

// backoffDelay computes the retry delay for a 1-based attempt number.
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := backoffBase << (attempt - 1)
	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}
	return delay
}
