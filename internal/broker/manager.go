package broker

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Test hooks. newClient builds the underlying paho client; retryAfter
// supplies the retry timer channel.
var (
	newClient  func(*pahomqtt.ClientOptions) pahomqtt.Client = pahomqtt.NewClient
	retryAfter                                               = func(d time.Duration) <-chan time.Time { return time.After(d) }
)

// Logger is the logging interface consumed by the Manager.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageObserver receives inbound application messages as (channel, payload).
type MessageObserver func(channel string, payload []byte)

// StatusObserver receives immutable status snapshots on every transition
// that changes connectivity, error, or last-connected time.
type StatusObserver func(Status)

type statusHandle struct {
	id int
	fn StatusObserver
}

type messageHandle struct {
	id int
	fn MessageObserver
}

// Manager owns the lifecycle of one broker connection.
//
// It validates and normalizes configuration, performs connection attempts,
// applies exponential-backoff retry up to a bound, exposes status
// snapshots, and notifies registered observers of status changes and
// inbound messages.
//
// Reconnection is an explicit state machine owned here, with paho's
// built-in mechanisms disabled (see buildClientOptions). The Manager
// exclusively owns the underlying link handle; callers only ever see
// status copies and observer callbacks.
//
// Concurrency: all methods are safe to call from multiple goroutines, but
// concurrent Connect calls are not queued. A second Connect while one is
// in flight starts an independent new sequence that replaces the prior
// config and handle.
type Manager struct {
	mu              sync.Mutex
	cfg             Config
	client          pahomqtt.Client
	state           State
	status          Status
	attempt         int
	manuallyStopped bool
	stop            chan struct{}

	// gen increments on every Connect call. Callbacks and retry loops
	// carry the generation they were started under and go inert when it
	// no longer matches, so a stale timer or a late connection-lost
	// callback can never act on a newer sequence.
	gen int

	// notifyMu serializes observer notification: a notification for one
	// transition completes before the next transition's side effects begin.
	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	nextObsID int
	statusObs []statusHandle
	msgObs    []messageHandle

	logger Logger
}

// NewManager creates an idle Manager. Call Connect to establish a link.
func NewManager() *Manager {
	return &Manager{logger: noopLogger{}}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// Connect validates the configuration, then establishes a connection with
// bounded exponential-backoff retry. It blocks until the connection is up
// or the sequence fails permanently.
//
// Configuration errors fail fast with ErrInvalidConfig and never retry.
// Per-attempt errors surface only through status observers; the returned
// error is the terminal one (exhausted retries, or the most recent
// failure when Disconnect interrupted the sequence).
func (m *Manager) Connect(cfg Config) (Status, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return m.GetStatus(), err
	}

	m.mu.Lock()
	m.abortSequenceLocked()
	m.cfg = cfg
	m.attempt = 0
	m.manuallyStopped = false
	m.gen++
	gen := m.gen
	stop := make(chan struct{})
	m.stop = stop
	m.state = StateConnecting
	m.status = Status{
		State:           StateConnecting,
		Endpoint:        cfg.Endpoint,
		Channel:         cfg.Channel,
		LastConnectedAt: m.status.LastConnectedAt,
	}
	m.mu.Unlock()

	m.logger.Info("broker connecting", "endpoint", cfg.Endpoint, "channel", cfg.Channel)

	if err := m.runRetry(gen, stop, cfg); err != nil {
		return m.GetStatus(), err
	}
	return m.GetStatus(), nil
}

// runRetry drives connect attempts until success, manual stop, sequence
// replacement, or an exhausted retry bound. It is used both by Connect and
// by the reconnect path after an unexpected connection loss.
func (m *Manager) runRetry(gen int, stop chan struct{}, cfg Config) error {
	var lastErr error
	for {
		lastErr = m.attemptOnce(gen, cfg)
		if lastErr == nil {
			return nil
		}

		m.mu.Lock()
		if m.gen != gen || m.manuallyStopped {
			m.mu.Unlock()
			// Preserve the real failure for diagnosability rather than
			// reporting a generic cancellation.
			return lastErr
		}
		m.attempt++
		attempt := m.attempt
		delay := backoffDelay(attempt)
		m.state = StateRetrying
		m.status.State = StateRetrying
		m.status.Connected = false
		m.status.Error = lastErr.Error()
		m.status.Attempt = attempt
		snap := m.status
		m.mu.Unlock()

		m.logger.Warn("broker connect attempt failed",
			"attempt", attempt,
			"delay", delay,
			"error", lastErr,
		)
		m.notifyStatus(snap)

		select {
		case <-retryAfter(delay):
		case <-stop:
			return lastErr
		}

		m.mu.Lock()
		if m.gen != gen || m.manuallyStopped {
			m.mu.Unlock()
			return lastErr
		}
		if m.attempt >= cfg.MaxAttempts {
			m.state = StateFailed
			m.status.State = StateFailed
			m.status.Error = lastErr.Error()
			snap := m.status
			m.mu.Unlock()
			m.notifyStatus(snap)
			return fmt.Errorf("%w: %d attempts, last error: %w", ErrRetriesExhausted, attempt, lastErr)
		}
		m.state = StateConnecting
		m.status.State = StateConnecting
		m.mu.Unlock()
	}
}

// attemptOnce performs a single connect plus channel subscription.
func (m *Manager) attemptOnce(gen int, cfg Config) error {
	opts := buildClientOptions(cfg)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		m.handleConnectionLost(gen, err)
	})
	client := newClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout + connectGrace) {
		client.Disconnect(0)
		return fmt.Errorf("%w: no response within %v", ErrConnectTimeout, cfg.ConnectTimeout+connectGrace)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// A connection without its subscription is useless: subscription
	// failure tears the link down and enters the retry path.
	sub := client.Subscribe(cfg.Channel, cfg.QoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		m.handleMessage(msg.Topic(), msg.Payload())
	})
	if !sub.WaitTimeout(subscribeTimeout) {
		client.Disconnect(disconnectQuiesce)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, subscribeTimeout)
	}
	if err := sub.Error(); err != nil {
		client.Disconnect(disconnectQuiesce)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	m.mu.Lock()
	if m.gen != gen || m.manuallyStopped {
		m.mu.Unlock()
		client.Disconnect(disconnectQuiesce)
		return fmt.Errorf("%w: sequence replaced during connect", ErrConnectionFailed)
	}
	m.client = client
	m.attempt = 0
	m.state = StateConnected
	m.status = Status{
		State:           StateConnected,
		Connected:       true,
		Endpoint:        cfg.Endpoint,
		Channel:         cfg.Channel,
		LastConnectedAt: time.Now(),
	}
	snap := m.status
	m.mu.Unlock()

	m.logger.Info("broker connected", "endpoint", cfg.Endpoint, "channel", cfg.Channel)
	m.notifyStatus(snap)

	// Best effort: announce ourselves on the system status topic.
	online := client.Publish(Topics{}.SystemStatus(), cfg.QoS, true, statusPayload("online", cfg.ClientID, ""))
	online.WaitTimeout(publishTimeout)

	return nil
}

// handleConnectionLost reacts to an unexpected link loss reported by the
// underlying client. Losses during manual disconnection, and late
// callbacks from replaced sequences, are ignored.
func (m *Manager) handleConnectionLost(gen int, cause error) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateConnected || m.manuallyStopped {
		m.mu.Unlock()
		return
	}
	m.client = nil
	m.attempt = 0
	m.state = StateRetrying
	m.status.State = StateRetrying
	m.status.Connected = false
	if cause != nil {
		m.status.Error = cause.Error()
	}
	snap := m.status
	stop := m.stop
	cfg := m.cfg
	m.mu.Unlock()

	m.logger.Warn("broker connection lost", "error", cause)
	m.notifyStatus(snap)

	go func() {
		if err := m.runRetry(gen, stop, cfg); err != nil {
			m.logger.Error("broker reconnect failed", "error", err)
		}
	}()
}

// Disconnect sets the manual-stop flag, cancels any pending retry, and
// tears down the link gracefully. It always succeeds, including when no
// connection is active.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.manuallyStopped = true
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	client := m.client
	m.client = nil
	cfg := m.cfg
	m.state = StateDisconnecting
	m.mu.Unlock()

	if client != nil {
		offline := client.Publish(Topics{}.SystemStatus(), cfg.QoS, true, statusPayload("offline", cfg.ClientID, "graceful_shutdown"))
		offline.WaitTimeout(publishTimeout)
		client.Disconnect(disconnectQuiesce)
	}

	m.mu.Lock()
	m.state = StateIdle
	m.status.State = StateIdle
	m.status.Connected = false
	m.status.Error = ""
	m.status.Attempt = 0
	snap := m.status
	m.mu.Unlock()

	m.logger.Info("broker disconnected")
	m.notifyStatus(snap)
	return nil
}

// Publish sends a payload to a channel, defaulting to the configured one.
//
// Payload may be raw bytes, a string, or any JSON-marshallable value.
// Publishing requires an established connection; there is no retry.
func (m *Manager) Publish(payload any, channel string) error {
	m.mu.Lock()
	client := m.client
	connected := m.status.Connected
	cfg := m.cfg
	m.mu.Unlock()

	if !connected || client == nil {
		return ErrNotConnected
	}
	if channel == "" {
		channel = cfg.Channel
	}

	data, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	token := client.Publish(channel, cfg.QoS, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// encodePayload converts a publish payload to wire bytes.
func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return json.Marshal(p)
	}
}

// GetStatus returns a snapshot of the current connection status.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsConnected reports whether the manager currently holds a live connection.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Connected && m.client != nil && m.client.IsConnected()
}

// OnStatusChange registers a status observer. Observers are invoked
// synchronously in registration order. The returned function removes the
// observer.
func (m *Manager) OnStatusChange(fn StatusObserver) func() {
	m.obsMu.Lock()
	m.nextObsID++
	id := m.nextObsID
	m.statusObs = append(m.statusObs, statusHandle{id: id, fn: fn})
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		for i, h := range m.statusObs {
			if h.id == id {
				m.statusObs = append(m.statusObs[:i], m.statusObs[i+1:]...)
				return
			}
		}
	}
}

// OnMessage registers a message observer invoked for every inbound
// application message as (channel, payload). The returned function removes
// the observer.
func (m *Manager) OnMessage(fn MessageObserver) func() {
	m.obsMu.Lock()
	m.nextObsID++
	id := m.nextObsID
	m.msgObs = append(m.msgObs, messageHandle{id: id, fn: fn})
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		for i, h := range m.msgObs {
			if h.id == id {
				m.msgObs = append(m.msgObs[:i], m.msgObs[i+1:]...)
				return
			}
		}
	}
}

// abortSequenceLocked cancels any in-flight connect sequence and releases
// the current link handle. Caller holds m.mu.
func (m *Manager) abortSequenceLocked() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	if m.client != nil {
		client := m.client
		m.client = nil
		go client.Disconnect(disconnectQuiesce)
	}
}

// notifyStatus delivers a status snapshot to all observers in registration
// order. Notification is synchronous and serialized across transitions.
func (m *Manager) notifyStatus(snap Status) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.obsMu.Lock()
	observers := make([]statusHandle, len(m.statusObs))
	copy(observers, m.statusObs)
	m.obsMu.Unlock()

	for _, h := range observers {
		h.fn(snap)
	}
}

// handleMessage delivers an inbound message to all message observers in
// registration order.
func (m *Manager) handleMessage(channel string, payload []byte) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.obsMu.Lock()
	observers := make([]messageHandle, len(m.msgObs))
	copy(observers, m.msgObs)
	m.obsMu.Unlock()

	for _, h := range observers {
		h.fn(channel, payload)
	}
}
