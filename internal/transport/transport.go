package transport

import (
	"context"
	"sync"

	"github.com/tagbridge/tagbridge-core/internal/protocol"
)

// eventBufferSize is the capacity of a transport's outward tag-event
// channel. A slow consumer drops the newest events rather than stalling
// the read pump.
const eventBufferSize = 64

// Transport is the uniform contract over a physical reader link.
//
// Serial- and TCP-attached readers speak the framed binary protocol;
// MQTT-attached readers deliver one tag per message with no framing.
// All variants emit the same normalized tag events.
//
// ReadTag requests a single inventory poll; push-based transports treat
// it as a no-op.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	StartScan() error
	StopScan() error
	ReadTag() error

	// Events is the outward tag-event stream. The channel stays open
	// across reconnects for the life of the transport.
	Events() <-chan protocol.TagEvent

	SetOnConnect(fn func())
	SetOnDisconnect(fn func(err error))
	SetOnError(fn func(err error))
}

// Logger is the logging interface consumed by transports.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// hooks holds the optional lifecycle callbacks shared by all transports.
// Callbacks are invoked synchronously from the transport's own goroutines
// and should not block.
type hooks struct {
	mu           sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	onError      func(err error)
}

// SetOnConnect sets a callback invoked when the link is established.
func (h *hooks) SetOnConnect(fn func()) {
	h.mu.Lock()
	h.onConnect = fn
	h.mu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the link is lost or closed.
// The error is nil for a deliberate Disconnect.
func (h *hooks) SetOnDisconnect(fn func(err error)) {
	h.mu.Lock()
	h.onDisconnect = fn
	h.mu.Unlock()
}

// SetOnError sets a callback invoked for recoverable errors, including
// frame decode failures, that do not take the link down.
func (h *hooks) SetOnError(fn func(err error)) {
	h.mu.Lock()
	h.onError = fn
	h.mu.Unlock()
}

func (h *hooks) fireConnect() {
	h.mu.RLock()
	fn := h.onConnect
	h.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (h *hooks) fireDisconnect(err error) {
	h.mu.RLock()
	fn := h.onDisconnect
	h.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (h *hooks) fireError(err error) {
	h.mu.RLock()
	fn := h.onError
	h.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
