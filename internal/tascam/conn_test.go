// internal/tascam/conn_test.go
package tascam

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"tascam-bridge/internal/config"
	"tascam-bridge/internal/model"
)

func connConfig(port int) *config.DeviceConfig {
	return &config.DeviceConfig{
		Host:             "127.0.0.1",
		Port:             port,
		ConnectTimeout:   500 * time.Millisecond,
		WriteTimeout:     time.Second,
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
		OfflineThreshold: 3,
		WatchTimeout:     time.Second,
		ShutdownGuard:    100 * time.Millisecond,
	}
}

// startUnit starts a fake unit listener and returns it with its port.
func startUnit(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestConnDeliversFramesInOrder(t *testing.T) {
	ln, port := startUnit(t)
	defer ln.Close()

	messages := make(chan model.Message, 16)
	c := NewConn(connConfig(port), zap.NewNop())
	c.OnMessage = func(m model.Message) { messages <- m }
	c.Start()
	defer c.Stop()

	unit, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer unit.Close()

	// Two complete frames in one write, then one frame split across writes.
	unit.Write([]byte("!7SSTPL\r!7MUT01\r"))
	unit.Write([]byte("!7MST"))
	time.Sleep(20 * time.Millisecond)
	unit.Write([]byte("CI\r"))

	want := []string{"!7SSTPL", "!7MUT01", "!7MSTCI"}
	for i, raw := range want {
		select {
		case m := <-messages:
			if m.Raw != raw {
				t.Errorf("message %d = %q, want %q", i, m.Raw, raw)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("message %d (%q) never arrived", i, raw)
		}
	}
}

func TestConnWriteRejectedWhenDisconnected(t *testing.T) {
	c := NewConn(connConfig(1), zap.NewNop()) // never started

	if err := c.Write([]byte("!7PLY\r")); err != ErrNotConnected {
		t.Errorf("Write = %v, want ErrNotConnected", err)
	}
}

func TestConnReconnectsAfterSessionDrop(t *testing.T) {
	ln, port := startUnit(t)
	defer ln.Close()

	states := make(chan ConnState, 32)
	c := NewConn(connConfig(port), zap.NewNop())
	c.OnStateChange = func(_, state ConnState) { states <- state }
	c.Start()
	defer c.Stop()

	waitState := func(want ConnState) {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case s := <-states:
				if s == want {
					return
				}
			case <-deadline:
				t.Fatalf("never reached state %s", want)
			}
		}
	}

	unit, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	waitState(StateConnected)

	// Kill the session from the unit side; the manager must recover alone.
	unit.Close()
	waitState(StateReconnecting)

	if _, err := ln.Accept(); err != nil {
		t.Fatalf("second accept: %v", err)
	}
	waitState(StateConnected)
}

func TestConnOutboundBytesVerbatim(t *testing.T) {
	ln, port := startUnit(t)
	defer ln.Close()

	c := NewConn(connConfig(port), zap.NewNop())
	c.Start()
	defer c.Stop()

	unit, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer unit.Close()

	// Wait for the manager to reach Connected.
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != StateConnected {
		if time.Now().After(deadline) {
			t.Fatal("never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := c.Write([]byte("!7NUM3\r")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	unit.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := unit.Read(buf)
	if err != nil {
		t.Fatalf("unit read: %v", err)
	}
	if got := string(buf[:n]); got != "!7NUM3\r" {
		t.Errorf("wire bytes = %q, want !7NUM3\\r", got)
	}
}
