package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tagbridge/tagbridge-core/internal/broker"
	"github.com/tagbridge/tagbridge-core/internal/protocol"
)

// brokerManager is the slice of broker.Manager the MQTT transport needs.
type brokerManager interface {
	Connect(cfg broker.Config) (broker.Status, error)
	Disconnect() error
	IsConnected() bool
	OnStatusChange(fn broker.StatusObserver) func()
	OnMessage(fn broker.MessageObserver) func()
}

// MQTT receives tag reads published by a remote reader bridge. Each
// inbound message carries one tag read, either as a complete reader
// frame or as a bare inventory payload.
//
// Connection lifecycle, retry and backoff are the broker manager's
// concern; this transport maps its status transitions onto the
// transport hook surface.
type MQTT struct {
	*tagStream

	cfg broker.Config
	mgr brokerManager

	scanning atomic.Bool

	mu          sync.Mutex
	connected   bool
	unsubStatus func()
	unsubMsg    func()
}

// NewMQTT returns an unconnected MQTT transport backed by its own broker
// manager. A nil logger disables logging.
func NewMQTT(cfg broker.Config, logger Logger) *MQTT {
	mgr := broker.NewManager()
	if logger != nil {
		mgr.SetLogger(logger)
	}
	return newMQTT(cfg, mgr, logger)
}

func newMQTT(cfg broker.Config, mgr brokerManager, logger Logger) *MQTT {
	return &MQTT{
		tagStream: newTagStream(logger),
		cfg:       cfg,
		mgr:       mgr,
	}
}

// Connect establishes the broker session and subscribes to the reader
// channel. The broker manager performs its own bounded retry; a failure
// here means the whole sequence was exhausted.
func (t *MQTT) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.mu.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	unsubMsg := t.mgr.OnMessage(t.handleMessage)
	unsubStatus := t.mgr.OnStatusChange(t.handleStatus)

	if _, err := t.mgr.Connect(t.cfg); err != nil {
		unsubMsg()
		unsubStatus()
		return err
	}

	t.mu.Lock()
	t.connected = true
	t.unsubMsg = unsubMsg
	t.unsubStatus = unsubStatus
	t.mu.Unlock()

	t.logger.Info("reader connected", "transport", "mqtt", "channel", t.cfg.Channel)
	t.fireConnect()
	return nil
}

// Disconnect tears down the broker session. Safe to call when not
// connected.
func (t *MQTT) Disconnect() error {
	t.scanning.Store(false)

	t.mu.Lock()
	wasConnected := t.connected
	unsubMsg := t.unsubMsg
	unsubStatus := t.unsubStatus
	t.connected = false
	t.unsubMsg = nil
	t.unsubStatus = nil
	t.mu.Unlock()

	if !wasConnected {
		return nil
	}

	if unsubStatus != nil {
		unsubStatus()
	}
	if unsubMsg != nil {
		unsubMsg()
	}
	if err := t.mgr.Disconnect(); err != nil {
		return err
	}

	t.logger.Info("reader disconnected", "transport", "mqtt", "channel", t.cfg.Channel)
	t.fireDisconnect(nil)
	return nil
}

// StartScan opens the emission gate. The remote bridge pushes reads on
// its own schedule, so scanning here only controls whether inbound
// messages surface as events.
func (t *MQTT) StartScan() error {
	if !t.mgr.IsConnected() {
		return ErrNotConnected
	}
	t.scanning.Store(true)
	return nil
}

// StopScan closes the emission gate. Inbound messages are dropped until
// scanning resumes.
func (t *MQTT) StopScan() error {
	t.scanning.Store(false)
	return nil
}

// ReadTag is a no-op for this transport: reads arrive push-style and
// there is no command path back to the reader.
func (t *MQTT) ReadTag() error {
	if !t.mgr.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Events returns the stream of decoded tag reads.
func (t *MQTT) Events() <-chan protocol.TagEvent {
	return t.events
}

// handleMessage turns one inbound broker message into one tag event.
// Messages carrying a complete reader frame are decoded as such;
// anything else is treated as a bare inventory payload.
func (t *MQTT) handleMessage(channel string, payload []byte) {
	if !t.scanning.Load() {
		return
	}

	arrived := time.Now()
	if f, err := protocol.Decode(payload); err == nil {
		if ev, ok := protocol.ExtractTag(f, arrived); ok {
			t.emit(ev)
		}
		return
	}
	t.emit(protocol.TagFromBytes(payload, arrived))
}

// handleStatus maps broker session transitions onto transport hooks.
// Retry attempts stay internal to the manager; only terminal transitions
// surface here.
func (t *MQTT) handleStatus(s broker.Status) {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return
	}

	switch s.State {
	case broker.StateConnected:
		t.fireConnect()
	case broker.StateFailed:
		t.scanning.Store(false)
		var cause error
		if s.Error != "" {
			cause = errors.New(s.Error)
		}
		t.fireDisconnect(cause)
	case broker.StateRetrying:
		if s.Error != "" {
			t.fireError(errors.New(s.Error))
		}
	}
}
