package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/tagbridge/tagbridge-core/internal/protocol"
)

// defaultSerialReadTimeout bounds each blocking read so the loop can
// notice shutdown promptly.
const defaultSerialReadTimeout = 300 * time.Millisecond

// openSerialPort is a hook for tests (overridden in unit tests).
var openSerialPort = func(device string, baud int) (serial.Port, error) {
	return serial.Open(device, &serial.Mode{BaudRate: baud})
}

// SerialConfig describes a serial-attached reader.
type SerialConfig struct {
	// Device is the serial device path, e.g. /dev/ttyUSB0.
	Device string

	// Baud is the line rate. Defaults to 57600, the usual rate for
	// UART-attached UHF readers.
	Baud int

	// Address is the reader's protocol address used in outbound frames.
	Address byte

	// ScanInterval is the period between inventory polls while scanning.
	ScanInterval time.Duration
}

// Serial reads framed reader traffic from a serial UART.
type Serial struct {
	*tagStream
	cfg SerialConfig

	mu     sync.Mutex
	port   serial.Port
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSerial creates a serial transport. Pass a nil logger to disable logging.
func NewSerial(cfg SerialConfig, logger Logger) *Serial {
	if cfg.Baud <= 0 {
		cfg.Baud = 57600
	}
	return &Serial{
		tagStream: newTagStream(logger),
		cfg:       cfg,
	}
}

// Connect opens the serial device and starts the read pump.
func (t *Serial) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return ErrAlreadyConnected
	}
	if t.cfg.Device == "" {
		return fmt.Errorf("%w: serial device is empty", ErrConnectFailed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	port, err := openSerialPort(t.cfg.Device, t.cfg.Baud)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrConnectFailed, t.cfg.Device, err)
	}
	if err := port.SetReadTimeout(defaultSerialReadTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("%w: set read timeout: %w", ErrConnectFailed, err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.port = port
	t.cancel = cancel
	t.done = done
	t.asm.Reset()

	t.logger.Info("serial connected", "device", t.cfg.Device, "baud", t.cfg.Baud)
	go t.readLoop(pumpCtx, port, done)

	t.fireConnect()
	return nil
}

// readLoop pumps port bytes through the reassembler until shutdown or a
// fatal device error. Serial ports are a secondary error path: the device
// surfaces removal as a path error on read rather than through any
// connection-level callback, so the loop itself feeds the disconnect
// transition.
func (t *Serial) readLoop(ctx context.Context, port serial.Port, done chan struct{}) {
	defer close(done)
	defer t.logger.Info("serial read loop ended")

	buf := make([]byte, readBufSize)
	backoff := rxBackoffMin
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			t.ingest(buf[:n])
			backoff = rxBackoffMin
		}
		if err != nil {
			if ctx.Err() != nil { // shutting down
				return
			}
			var perr *os.PathError
			if errors.As(err, &perr) {
				// Device removed or fatal.
				t.logger.Error("serial device lost", "error", err)
				t.teardown()
				t.fireDisconnect(err)
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				continue // transient on serial links
			}
			t.logger.Warn("serial read error", "error", err, "backoff", backoff)
			t.fireError(err)
			sleepFn(backoff)
			backoff = nextBackoff(backoff)
		}
	}
}

// Disconnect stops scanning, cancels the read pump and closes the device.
// Safe to call when not connected.
func (t *Serial) Disconnect() error {
	t.stopPolling()

	t.mu.Lock()
	port := t.port
	cancel := t.cancel
	done := t.done
	t.port = nil
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()

	if port == nil {
		return nil
	}
	cancel()
	err := port.Close()
	if done != nil {
		<-done
	}
	t.fireDisconnect(nil)
	return err
}

// StartScan begins periodic inventory polling.
func (t *Serial) StartScan() error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return ErrNotConnected
	}
	t.startPolling(port, t.cfg.Address, t.cfg.ScanInterval)
	return nil
}

// StopScan halts inventory polling; the link stays up.
func (t *Serial) StopScan() error {
	t.stopPolling()
	return nil
}

// ReadTag issues a single inventory poll.
func (t *Serial) ReadTag() error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return ErrNotConnected
	}
	return writeInventoryPoll(port, t.cfg.Address)
}

// Events returns the outward tag-event stream.
func (t *Serial) Events() <-chan protocol.TagEvent {
	return t.events
}

// teardown releases the port after a fatal read error.
func (t *Serial) teardown() {
	t.stopPolling()
	t.mu.Lock()
	if t.port != nil {
		_ = t.port.Close()
		t.port = nil
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.done = nil
	t.mu.Unlock()
}
