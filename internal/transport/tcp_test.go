package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/tagbridge/tagbridge-core/internal/protocol"
)

// installFakeDial routes TCP dials to an in-memory pipe and returns the
// peer end for the test to drive.
func installFakeDial(t *testing.T, dialErr error) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	prev := dialTCP
	dialTCP = func(addr string, timeout time.Duration) (net.Conn, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return client, nil
	}
	t.Cleanup(func() {
		dialTCP = prev
		client.Close()
		server.Close()
	})
	return server
}

func TestTCPConnectAndReceive(t *testing.T) {
	server := installFakeDial(t, nil)

	tr := NewTCP(TCPConfig{Addr: "10.0.0.5:6000", Address: 0x01}, nil)

	connected := make(chan struct{}, 1)
	tr.SetOnConnect(func() { connected <- struct{}{} })

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer tr.Disconnect()

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatalf("connect hook not fired")
	}

	payload := append([]byte("E200-TAG"), 0x47, 0x00)
	frame := protocol.Encode(0x01, protocol.CmdInventoryBuffered, payload)
	if _, err := server.Write(frame); err != nil {
		t.Fatalf("server write: %v", err)
	}

	ev := waitEvent(t, tr.Events())
	if ev.ID != "E200-TAG" {
		t.Fatalf("event ID = %q, want %q", ev.ID, "E200-TAG")
	}
	if ev.RSSI != -0x47 {
		t.Fatalf("event RSSI = %d, want %d", ev.RSSI, -0x47)
	}
}

func TestTCPPeerCloseFiresDisconnect(t *testing.T) {
	server := installFakeDial(t, nil)

	tr := NewTCP(TCPConfig{Addr: "10.0.0.5:6000"}, nil)

	lost := make(chan error, 1)
	tr.SetOnDisconnect(func(err error) { lost <- err })

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	server.Close()

	select {
	case err := <-lost:
		if err == nil {
			t.Fatalf("disconnect hook got nil error, want close cause")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("disconnect hook not fired after peer close")
	}

	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect() after peer close error = %v", err)
	}
}

func TestTCPConnectErrors(t *testing.T) {
	t.Run("dial_failure", func(t *testing.T) {
		installFakeDial(t, fmt.Errorf("connection refused"))
		tr := NewTCP(TCPConfig{Addr: "10.0.0.5:6000"}, nil)
		if err := tr.Connect(context.Background()); !errors.Is(err, ErrConnectFailed) {
			t.Fatalf("Connect() error = %v, want ErrConnectFailed", err)
		}
	})

	t.Run("empty_addr", func(t *testing.T) {
		tr := NewTCP(TCPConfig{}, nil)
		if err := tr.Connect(context.Background()); !errors.Is(err, ErrConnectFailed) {
			t.Fatalf("Connect() error = %v, want ErrConnectFailed", err)
		}
	})

	t.Run("already_connected", func(t *testing.T) {
		installFakeDial(t, nil)
		tr := NewTCP(TCPConfig{Addr: "10.0.0.5:6000"}, nil)
		if err := tr.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		defer tr.Disconnect()
		if err := tr.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
			t.Fatalf("second Connect() error = %v, want ErrAlreadyConnected", err)
		}
	})
}

func TestTCPDeliberateDisconnect(t *testing.T) {
	installFakeDial(t, nil)

	tr := NewTCP(TCPConfig{Addr: "10.0.0.5:6000"}, nil)

	lost := make(chan error, 1)
	tr.SetOnDisconnect(func(err error) { lost <- err })

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	select {
	case err := <-lost:
		if err != nil {
			t.Fatalf("deliberate disconnect carried error %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("disconnect hook not fired")
	}

	if err := tr.StartScan(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("StartScan() after disconnect error = %v, want ErrNotConnected", err)
	}
}
