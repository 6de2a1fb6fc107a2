// internal/tascam/conn.go
package tascam

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"tascam-bridge/internal/config"
	"tascam-bridge/internal/model"
	"tascam-bridge/internal/protocol"
)

// ErrNotConnected is returned when a command is attempted while the control
// session is down. Callers needing send-once-reconnected semantics must
// re-issue after observing the state change.
var ErrNotConnected = errors.New("control connection is not established")

// ErrShuttingDown is returned while the post-power-off guard window is
// active; the unit ignores everything except power-on during shutdown.
var ErrShuttingDown = errors.New("unit is shutting down")

// ConnState represents the connection state machine
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the state name
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Conn owns the TCP control socket to the unit: dialing, the read loop,
// the write path, and reconnection with bounded exponential backoff.
// Exactly one session exists at a time; reconnection policy lives here
// and nowhere else.
type Conn struct {
	cfg    *config.DeviceConfig
	logger *zap.Logger

	mu    sync.RWMutex
	conn  net.Conn
	state ConnState

	// Callbacks are set before Start and invoked from the run goroutine
	// (OnMessage, OnStateChange, OnConnectFailure) in arrival order.
	OnMessage        func(model.Message)
	OnStateChange    func(old, new ConnState)
	OnConnectFailure func(consecutive int)

	done     chan struct{}
	stopOnce sync.Once
}

// NewConn creates a connection manager for the configured unit
func NewConn(cfg *config.DeviceConfig, logger *zap.Logger) *Conn {
	return &Conn{
		cfg: cfg,
		logger: logger.With(
			zap.String("component", "connection"),
			zap.String("device", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		),
		state: StateDisconnected,
		done:  make(chan struct{}),
	}
}

// Start launches the connect/read/reconnect loop. It returns immediately;
// connectivity is observable via State and the OnStateChange callback.
func (c *Conn) Start() {
	go c.run()
}

// Stop terminates the loop and closes any open session.
func (c *Conn) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.closeSession()
	})
}

// State returns the current connection state
func (c *Conn) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Write hands one encoded frame to the socket. It fails immediately when
// not connected, and a failed write forces the reconnect transition: the
// frame is considered lost, matching the protocol's no-ack contract.
func (c *Conn) Write(frame []byte) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}

	n, err := conn.Write(frame)
	if err != nil {
		c.logger.Warn("Write failed, dropping session", zap.Error(err))
		conn.Close() // read loop notices and drives the reconnect
		return fmt.Errorf("write to unit failed: %w", err)
	}
	if n != len(frame) {
		conn.Close()
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(frame))
	}

	c.logger.Debug("Frame written", zap.ByteString("frame", frame))
	return nil
}

// Drop closes the current session, if any, forcing a reconnect cycle.
// Used after a power-off command: the unit will stop answering anyway.
func (c *Conn) Drop() {
	c.closeSession()
}

// run is the connection state machine loop. It runs until Stop.
func (c *Conn) run() {
	backoff := c.cfg.ReconnectInitial
	failures := 0

	for {
		select {
		case <-c.done:
			c.setState(StateDisconnected)
			return
		default:
		}

		c.setState(StateConnecting)
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port), c.cfg.ConnectTimeout)
		if err != nil {
			failures++
			c.logger.Debug("Connect attempt failed",
				zap.Int("consecutive_failures", failures),
				zap.Error(err),
			)
			if c.OnConnectFailure != nil {
				c.OnConnectFailure(failures)
			}
			c.setState(StateReconnecting)
			if !c.sleep(jitter(backoff)) {
				return
			}
			backoff = nextBackoff(backoff, c.cfg.ReconnectMax)
			continue
		}

		failures = 0
		backoff = c.cfg.ReconnectInitial

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetKeepAlive(true)
			tcpConn.SetKeepAlivePeriod(30 * time.Second)
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)
		c.logger.Info("Control connection established")

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		select {
		case <-c.done:
			c.setState(StateDisconnected)
			return
		default:
		}

		c.logger.Info("Control connection lost, reconnecting")
		c.setState(StateReconnecting)
		if !c.sleep(jitter(backoff)) {
			return
		}
		backoff = nextBackoff(backoff, c.cfg.ReconnectMax)
	}
}

// readLoop appends incoming bytes to an accumulating buffer and drains every
// complete frame through the codec, publishing messages in arrival order.
// Frame order is preserved even when a frame spans multiple reads. Returns
// when the session dies.
func (c *Conn) readLoop(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				msg, rest := protocol.Decode(buf)
				buf = rest
				if msg == nil {
					break
				}
				if c.OnMessage != nil {
					c.OnMessage(*msg)
				}
			}
		}
		if err != nil {
			c.logger.Debug("Read loop ended", zap.Error(err))
			return
		}
	}
}

// setState records a transition and notifies the state callback.
func (c *Conn) setState(state ConnState) {
	c.mu.Lock()
	old := c.state
	c.state = state
	c.mu.Unlock()

	if old == state {
		return
	}
	c.logger.Debug("Connection state changed",
		zap.String("from", old.String()),
		zap.String("to", state.String()),
	)
	if c.OnStateChange != nil {
		c.OnStateChange(old, state)
	}
}

// closeSession closes the active socket, if any.
func (c *Conn) closeSession() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// sleep waits for d or until Stop; returns false when stopping.
func (c *Conn) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.done:
		return false
	case <-timer.C:
		return true
	}
}

// nextBackoff doubles the interval up to the configured cap.
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	return next
}

// jitter spreads an interval by ±20% so reconnect storms from several
// bridges do not synchronize.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
}
