// internal/tascam/controller.go
package tascam

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tascam-bridge/internal/config"
	"tascam-bridge/internal/model"
	"tascam-bridge/internal/protocol"
)

// Publisher is the event sink boundary: every decoded and synthesized
// message is handed to it in arrival order. Implementations must not block;
// slow consumers are their problem, not the engine's.
type Publisher interface {
	Publish(model.Message)
}

// Controller is the engine facade: one per unit. It owns the connection,
// the state cache, the command funnel, the watch registry, and power
// inference. Facade consumers (HTTP, WebSocket, MQTT, history) hold a
// reference to the controller and never touch the socket.
type Controller struct {
	cfg       *config.DeviceConfig
	logger    *zap.Logger
	cache     *StateCache
	registry  *WatchRegistry
	conn      *Conn
	dispatch  *Dispatcher
	power     *PowerManager
	publisher Publisher

	mu         sync.Mutex
	guardUntil time.Time // post-power-off command lockout
	pollStop   chan struct{}
	stopOnce   sync.Once
}

// NewController wires the engine components for one unit
func NewController(cfg *config.DeviceConfig, logger *zap.Logger, publisher Publisher) *Controller {
	c := &Controller{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "controller")),
		cache:     NewStateCache(),
		registry:  NewWatchRegistry(logger),
		power:     NewPowerManager(cfg, logger),
		publisher: publisher,
		pollStop:  make(chan struct{}),
	}

	c.conn = NewConn(cfg, logger)
	c.conn.OnMessage = c.handleMessage
	c.conn.OnStateChange = c.handleStateChange
	c.conn.OnConnectFailure = c.handleConnectFailure
	c.dispatch = NewDispatcher(c.conn, logger)

	return c
}

// Start brings up the connection loop and the status poller
func (c *Controller) Start() {
	c.conn.Start()
	go c.pollLoop()
	c.logger.Info("Controller started")
}

// Stop tears everything down. Safe to call more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.pollStop)
		c.dispatch.Close()
		c.conn.Stop()
		c.registry.Close()
		c.logger.Info("Controller stopped")
	})
}

// OnDispatch forwards to the dispatcher's command observer hook.
func (c *Controller) OnDispatch(fn func(model.CommandRequest)) {
	c.dispatch.OnDispatch = fn
}

// Send resolves a friendly alias or raw protocol string and queues it for
// the wire. Toggle commands resolve against the cached state; power
// commands route through the power orchestrator. Fails fast with
// ErrNotConnected while the session is down and with ErrShuttingDown
// during the post-power-off guard window.
func (c *Controller) Send(command string) error {
	alias := strings.ToLower(strings.TrimSpace(command))

	switch alias {
	case "power_on":
		return c.PowerOn()
	case "power_off":
		// The orchestrator's PowerOff is a silent no-op when disconnected;
		// the command API rejects instead so callers see the failure.
		if c.conn.State() != StateConnected {
			return ErrNotConnected
		}
		return c.PowerOff()
	}

	if c.guardActive() {
		return ErrShuttingDown
	}

	switch alias {
	case "toggle_tray":
		if protocol.TrayOpen(c.cache.Get(model.KeyDiscStatus)) {
			command = "tray_close"
		} else {
			command = "tray_open"
		}
	case "toggle_mute":
		if protocol.Muted(c.cache.Get(model.KeyMute)) {
			command = "mute_off"
		} else {
			command = "mute_on"
		}
	}

	return c.dispatch.Send(command)
}

// PowerOn wakes the unit. When a session is live the protocol power command
// is used; otherwise a network wake signal is broadcast and the call returns
// without waiting for the unit to come up. Callers observe success through
// the connection's later transition to connected.
func (c *Controller) PowerOn() error {
	c.mu.Lock()
	c.guardUntil = time.Time{}
	c.mu.Unlock()

	if c.conn.State() == StateConnected {
		return c.dispatch.Send("power_on")
	}
	return c.power.Wake()
}

// PowerOff puts the unit into standby. A no-op when disconnected: there is
// no session to command. On delivery the shutdown guard engages, power is
// asserted off, and the session is dropped since the unit stops answering.
func (c *Controller) PowerOff() error {
	if c.conn.State() != StateConnected {
		return nil
	}

	if err := c.dispatch.Send("power_off"); err != nil {
		return err
	}

	c.mu.Lock()
	c.guardUntil = time.Now().Add(c.cfg.ShutdownGuard)
	c.mu.Unlock()

	if _, changed := c.power.ForceOff(); changed {
		c.synthesizePower(model.PowerOff)
	}
	c.cache.ClearMetadata()
	c.conn.Drop()
	return nil
}

// Watch registers a time-bounded waiter for an exact raw protocol string.
// A non-positive timeout uses the configured default.
func (c *Controller) Watch(match string, timeout time.Duration) <-chan WatchOutcome {
	if timeout <= 0 {
		timeout = c.cfg.WatchTimeout
	}
	return c.registry.Watch(match, timeout)
}

// Snapshot returns a copy of the current device state
func (c *Controller) Snapshot() model.DeviceState {
	return c.cache.Snapshot()
}

// ConnState returns the connection state machine's current state
func (c *Controller) ConnState() ConnState {
	return c.conn.State()
}

// handleMessage is the single decode-apply path: cache, event sink, watch
// registry, in that order, for every decoded frame.
func (c *Controller) handleMessage(msg model.Message) {
	c.cache.Apply(msg)
	if c.publisher != nil {
		c.publisher.Publish(msg)
	}
	c.registry.Notify(msg)

	// First decoded message of a session proves the control service is
	// alive, which is when power flips to on.
	if _, changed := c.power.NoteActivity(); changed {
		c.synthesizePower(model.PowerOn)
	}
}

// handleStateChange re-evaluates power at session boundaries. Device state
// persists across sessions; only playback metadata is cleared when the unit
// goes away.
func (c *Controller) handleStateChange(old, new ConnState) {
	switch {
	case new == StateConnected:
		c.power.NoteConnected()
	case old == StateConnected:
		if _, changed := c.power.NoteDisconnected(); changed {
			c.cache.SetPower(model.PowerUnknown)
		}
		c.cache.ClearMetadata()
	}
}

// handleConnectFailure feeds the offline heuristic: a configured run of
// consecutive failed connects asserts power off.
func (c *Controller) handleConnectFailure(consecutive int) {
	if _, changed := c.power.NoteConnectFailure(); changed {
		c.synthesizePower(model.PowerOff)
	}
}

// synthesizePower pushes an inferred power transition through the same
// path as hardware status: cache, event sink, watch registry.
func (c *Controller) synthesizePower(state model.PowerState) {
	raw := RawPowerOff
	if state == model.PowerOn {
		raw = RawPowerOn
	}
	msg := model.Message{
		Key:       model.KeyPower,
		Value:     string(state),
		Raw:       raw,
		Timestamp: time.Now(),
	}

	c.cache.SetPower(state)
	c.cache.Apply(msg)
	if c.publisher != nil {
		c.publisher.Publish(msg)
	}
	c.registry.Notify(msg)

	c.logger.Info("Power state inferred", zap.String("power", string(state)))
}

// pollLoop keeps the cache warm by querying status while connected. The
// extended metadata queries only run during active playback.
func (c *Controller) pollLoop() {
	if c.cfg.PollInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.pollStop:
			return
		case <-ticker.C:
		}

		if c.conn.State() != StateConnected || c.guardActive() {
			continue
		}

		queries := protocol.PollQueries
		if protocol.MediaActiveStates[c.cache.Get(model.KeyTransport)] {
			queries = append(append([]string{}, queries...), protocol.PollQueriesMedia...)
		}
		for _, q := range queries {
			if err := c.dispatch.Send(q); err != nil {
				break // session just dropped; the reconnect loop owns it
			}
		}
	}
}

// guardActive reports whether the post-power-off lockout is in effect.
func (c *Controller) guardActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Before(c.guardUntil)
}
