package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tagbridge/tagbridge-core/internal/protocol"
)

const defaultDialTimeout = 5 * time.Second

// dialTCP is swapped out in tests to avoid real network connections.
var dialTCP = func(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

// TCPConfig describes a reader reachable over a TCP socket, typically a
// serial-to-ethernet converter in front of the reader module.
type TCPConfig struct {
	// Addr is the host:port of the reader endpoint.
	Addr string

	// DialTimeout bounds the initial connection attempt. Defaults to 5s.
	DialTimeout time.Duration

	// Address is the reader bus address polled during scanning.
	Address byte

	// ScanInterval is the polling cadence while scanning is active.
	ScanInterval time.Duration
}

// TCP reads framed reader output from a TCP stream. Unlike the serial
// variant an EOF is treated as the peer closing the connection, so the
// read loop tears down rather than retrying.
type TCP struct {
	*tagStream

	cfg TCPConfig

	mu     sync.Mutex
	conn   net.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTCP returns an unconnected TCP transport. A nil logger disables
// logging.
func NewTCP(cfg TCPConfig, logger Logger) *TCP {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = defaultScanInterval
	}
	return &TCP{
		tagStream: newTagStream(logger),
		cfg:       cfg,
	}
}

// Connect dials the reader endpoint and starts the read pump.
func (t *TCP) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.mu.Unlock()

	if t.cfg.Addr == "" {
		return fmt.Errorf("%w: address not configured", ErrConnectFailed)
	}

	conn, err := dialTCP(t.cfg.Addr, t.cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrConnectFailed, t.cfg.Addr, err)
	}
	if ctx.Err() != nil {
		conn.Close()
		return ctx.Err()
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.conn = conn
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	t.asm.Reset()
	go t.readLoop(pumpCtx, conn, done)

	t.logger.Info("reader connected", "transport", "tcp", "addr", t.cfg.Addr)
	t.fireConnect()
	return nil
}

func (t *TCP) readLoop(ctx context.Context, conn net.Conn, done chan struct{}) {
	defer close(done)

	buf := make([]byte, readBufSize)
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			t.ingest(buf[:n])
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			t.logger.Warn("reader connection closed", "addr", t.cfg.Addr, "error", err)
			t.teardown(conn)
			t.fireDisconnect(err)
			return
		}
		t.logger.Warn("reader connection lost", "addr", t.cfg.Addr, "error", err)
		t.teardown(conn)
		t.fireDisconnect(err)
		return
	}
}

// Disconnect stops scanning, closes the connection and waits for the
// read pump to exit. Safe to call when not connected.
func (t *TCP) Disconnect() error {
	t.stopPolling()

	t.mu.Lock()
	conn := t.conn
	cancel := t.cancel
	done := t.done
	t.conn = nil
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	if cancel != nil {
		cancel()
	}
	conn.Close()
	if done != nil {
		<-done
	}

	t.logger.Info("reader disconnected", "transport", "tcp", "addr", t.cfg.Addr)
	t.fireDisconnect(nil)
	return nil
}

// StartScan begins periodic inventory polling.
func (t *TCP) StartScan() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	t.startPolling(conn, t.cfg.Address, t.cfg.ScanInterval)
	return nil
}

// StopScan halts inventory polling. The connection stays up.
func (t *TCP) StopScan() error {
	t.stopPolling()
	return nil
}

// ReadTag issues a single inventory poll outside the scanning cadence.
func (t *TCP) ReadTag() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return writeInventoryPoll(conn, t.cfg.Address)
}

// Events returns the stream of decoded tag reads.
func (t *TCP) Events() <-chan protocol.TagEvent {
	return t.events
}

// teardown clears connection state after a fatal read error. The pump
// goroutine owns the close here, so Disconnect afterwards is a no-op.
func (t *TCP) teardown(conn net.Conn) {
	t.stopPolling()
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
		t.cancel = nil
		t.done = nil
	}
	t.mu.Unlock()
	conn.Close()
}
