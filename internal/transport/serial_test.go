package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/tagbridge/tagbridge-core/internal/protocol"
)

// === Fakes ===

// fakePort is an in-memory serial.Port. Reads block on the data channel;
// Close unblocks any pending read with a path error, mirroring how a
// removed USB adapter surfaces on a real port.
type fakePort struct {
	data   chan []byte
	closed chan struct{}
	writes chan []byte

	mu        sync.Mutex
	closeOnce sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		data:   make(chan []byte, 16),
		closed: make(chan struct{}),
		writes: make(chan []byte, 16),
	}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	select {
	case chunk := <-p.data:
		return copy(buf, chunk), nil
	case <-p.closed:
		return 0, &os.PathError{Op: "read", Path: "/dev/ttyUSB0", Err: os.ErrClosed}
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case p.writes <- cp:
	default:
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) SetMode(*serial.Mode) error                       { return nil }
func (p *fakePort) Drain() error                                     { return nil }
func (p *fakePort) ResetInputBuffer() error                          { return nil }
func (p *fakePort) ResetOutputBuffer() error                         { return nil }
func (p *fakePort) SetDTR(bool) error                                { return nil }
func (p *fakePort) SetRTS(bool) error                                { return nil }
func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return nil, nil }
func (p *fakePort) SetReadTimeout(time.Duration) error               { return nil }
func (p *fakePort) Break(time.Duration) error                        { return nil }

// installFakePort routes serial opens to the given port for the duration
// of the test.
func installFakePort(t *testing.T, port *fakePort, openErr error) {
	t.Helper()
	prev := openSerialPort
	openSerialPort = func(device string, baud int) (serial.Port, error) {
		if openErr != nil {
			return nil, openErr
		}
		return port, nil
	}
	t.Cleanup(func() { openSerialPort = prev })
}

func waitEvent(t *testing.T, events <-chan protocol.TagEvent) protocol.TagEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for tag event")
		return protocol.TagEvent{}
	}
}

// === Connect / receive ===

func TestSerialConnectAndReceive(t *testing.T) {
	port := newFakePort()
	installFakePort(t, port, nil)

	tr := NewSerial(SerialConfig{Device: "/dev/ttyUSB0", Address: 0x01}, nil)

	connected := make(chan struct{}, 1)
	tr.SetOnConnect(func() { connected <- struct{}{} })

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatalf("connect hook not fired")
	}

	payload := append([]byte("CARD-0042"), 0x50, 0x00)
	frame := protocol.Encode(0x01, protocol.CmdInventory, payload)

	// Deliver the frame split across two chunks to exercise reassembly.
	port.data <- frame[:3]
	port.data <- frame[3:]

	ev := waitEvent(t, tr.Events())
	if ev.ID != "CARD-0042" {
		t.Fatalf("event ID = %q, want %q", ev.ID, "CARD-0042")
	}
	if ev.RSSI != -0x50 {
		t.Fatalf("event RSSI = %d, want %d", ev.RSSI, -0x50)
	}

	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
}

func TestSerialConnectErrors(t *testing.T) {
	t.Run("empty_device", func(t *testing.T) {
		tr := NewSerial(SerialConfig{}, nil)
		if err := tr.Connect(context.Background()); !errors.Is(err, ErrConnectFailed) {
			t.Fatalf("Connect() error = %v, want ErrConnectFailed", err)
		}
	})

	t.Run("open_failure", func(t *testing.T) {
		installFakePort(t, nil, fmt.Errorf("no such device"))
		tr := NewSerial(SerialConfig{Device: "/dev/ttyUSB9"}, nil)
		if err := tr.Connect(context.Background()); !errors.Is(err, ErrConnectFailed) {
			t.Fatalf("Connect() error = %v, want ErrConnectFailed", err)
		}
	})

	t.Run("already_connected", func(t *testing.T) {
		installFakePort(t, newFakePort(), nil)
		tr := NewSerial(SerialConfig{Device: "/dev/ttyUSB0"}, nil)
		if err := tr.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		defer tr.Disconnect()
		if err := tr.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
			t.Fatalf("second Connect() error = %v, want ErrAlreadyConnected", err)
		}
	})

	t.Run("cancelled_context", func(t *testing.T) {
		tr := NewSerial(SerialConfig{Device: "/dev/ttyUSB0"}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := tr.Connect(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("Connect() error = %v, want context.Canceled", err)
		}
	})
}

// === Polling ===

func TestSerialReadTagWritesInventoryPoll(t *testing.T) {
	port := newFakePort()
	installFakePort(t, port, nil)

	tr := NewSerial(SerialConfig{Device: "/dev/ttyUSB0", Address: 0x02}, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer tr.Disconnect()

	if err := tr.ReadTag(); err != nil {
		t.Fatalf("ReadTag() error = %v", err)
	}

	want := protocol.Encode(0x02, protocol.CmdInventory, nil)
	select {
	case got := <-port.writes:
		if !bytes.Equal(got, want) {
			t.Fatalf("wrote % X, want % X", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("no poll frame written")
	}
}

func TestSerialScanPolling(t *testing.T) {
	port := newFakePort()
	installFakePort(t, port, nil)

	tr := NewSerial(SerialConfig{
		Device:       "/dev/ttyUSB0",
		Address:      0x01,
		ScanInterval: 10 * time.Millisecond,
	}, nil)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer tr.Disconnect()

	if err := tr.StartScan(); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}

	want := protocol.Encode(0x01, protocol.CmdInventory, nil)
	for i := 0; i < 2; i++ {
		select {
		case got := <-port.writes:
			if !bytes.Equal(got, want) {
				t.Fatalf("poll %d wrote % X, want % X", i, got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("poll %d never written", i)
		}
	}

	if err := tr.StopScan(); err != nil {
		t.Fatalf("StopScan() error = %v", err)
	}
}

func TestSerialNotConnected(t *testing.T) {
	tr := NewSerial(SerialConfig{Device: "/dev/ttyUSB0"}, nil)
	if err := tr.StartScan(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("StartScan() error = %v, want ErrNotConnected", err)
	}
	if err := tr.ReadTag(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("ReadTag() error = %v, want ErrNotConnected", err)
	}
	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect() when idle error = %v", err)
	}
}

// === Device loss ===

func TestSerialDeviceLostFiresDisconnect(t *testing.T) {
	port := newFakePort()
	installFakePort(t, port, nil)

	tr := NewSerial(SerialConfig{Device: "/dev/ttyUSB0"}, nil)

	lost := make(chan error, 1)
	tr.SetOnDisconnect(func(err error) { lost <- err })

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Simulate the adapter disappearing under the read loop.
	port.Close()

	select {
	case err := <-lost:
		if err == nil {
			t.Fatalf("disconnect hook got nil error, want path error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("disconnect hook not fired after device loss")
	}

	// The loop already tore the link down; Disconnect is now a no-op.
	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect() after device loss error = %v", err)
	}
}

func TestSerialCorruptFrameSurfacesError(t *testing.T) {
	port := newFakePort()
	installFakePort(t, port, nil)

	tr := NewSerial(SerialConfig{Device: "/dev/ttyUSB0"}, nil)

	decodeErrs := make(chan error, 1)
	tr.SetOnError(func(err error) { decodeErrs <- err })

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer tr.Disconnect()

	frame := protocol.Encode(0x01, protocol.CmdInventory, append([]byte("BAD"), 0x40, 0x00))
	frame[len(frame)-1] ^= 0xFF
	port.data <- frame

	select {
	case err := <-decodeErrs:
		if !errors.Is(err, protocol.ErrChecksum) {
			t.Fatalf("error hook got %v, want ErrChecksum", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("error hook not fired for corrupt frame")
	}

	// The stream must survive: a good frame still comes through.
	good := protocol.Encode(0x01, protocol.CmdInventory, append([]byte("OK-1"), 0x42, 0x00))
	port.data <- good
	if ev := waitEvent(t, tr.Events()); ev.ID != "OK-1" {
		t.Fatalf("event after corrupt frame = %q, want %q", ev.ID, "OK-1")
	}
}
