// internal/tascam/power.go
package tascam

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"tascam-bridge/internal/config"
	"tascam-bridge/internal/model"
)

// Synthesized frames published on inferred power transitions. The unit has
// no power-query opcode, so these never appear on the wire; they flow
// through the same event channel as hardware status so downstream consumers
// see power like any other message.
const (
	RawPowerOn  = "!7SSTON"
	RawPowerOff = "!7SSTOFF"
)

// PowerManager infers the unit's power state from connectivity and message
// activity, and emits the network wake signal for power-on. Inference is
// best-effort: "off" is a heuristic reached after a configurable run of
// failed connection attempts, never a certainty.
type PowerManager struct {
	cfg    *config.DeviceConfig
	logger *zap.Logger

	mu       sync.Mutex
	state    model.PowerState
	failures int
}

// NewPowerManager creates a power manager for the configured unit
func NewPowerManager(cfg *config.DeviceConfig, logger *zap.Logger) *PowerManager {
	return &PowerManager{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "power")),
		state:  model.PowerUnknown,
	}
}

// State returns the current inferred power state
func (pm *PowerManager) State() model.PowerState {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.state
}

// NoteConnectFailure records one failed connection attempt. Once the
// consecutive-failure count reaches the configured threshold the unit is
// presumed off. Returns the state and whether it changed.
func (pm *PowerManager) NoteConnectFailure() (model.PowerState, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.failures++
	if pm.failures >= pm.cfg.OfflineThreshold && pm.state != model.PowerOff {
		pm.state = model.PowerOff
		pm.logger.Info("Unit presumed off",
			zap.Int("consecutive_failures", pm.failures),
			zap.Int("threshold", pm.cfg.OfflineThreshold),
		)
		return pm.state, true
	}
	return pm.state, false
}

// NoteConnected resets the failure counter. Power is not asserted on until
// the session has decoded at least one message; reachability alone is not
// proof the control service is answering.
func (pm *PowerManager) NoteConnected() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.failures = 0
}

// NoteActivity records a decoded message in the current session, asserting
// power on. Returns the state and whether it changed.
func (pm *PowerManager) NoteActivity() (model.PowerState, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.state != model.PowerOn {
		pm.state = model.PowerOn
		return pm.state, true
	}
	return pm.state, false
}

// NoteDisconnected marks power unknown after a live session drops. A unit
// already presumed off stays off. Returns the state and whether it changed.
func (pm *PowerManager) NoteDisconnected() (model.PowerState, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.state == model.PowerOn {
		pm.state = model.PowerUnknown
		return pm.state, true
	}
	return pm.state, false
}

// ForceOff asserts off immediately, used after a delivered power-off
// command. Returns the state and whether it changed.
func (pm *PowerManager) ForceOff() (model.PowerState, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.failures = 0
	if pm.state != model.PowerOff {
		pm.state = model.PowerOff
		return pm.state, true
	}
	return pm.state, false
}

// Wake broadcasts a wake-on-LAN magic packet for the configured MAC, to the
// universal broadcast address and to the host's directed /24 broadcast.
// Fire-and-forget: success is observed later via the connection coming up.
func (pm *PowerManager) Wake() error {
	if pm.cfg.MACAddress == "" {
		return fmt.Errorf("no MAC address configured for wake signal")
	}

	packet, err := MagicPacket(pm.cfg.MACAddress)
	if err != nil {
		return err
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return fmt.Errorf("failed to open wake socket: %w", err)
	}
	defer conn.Close()

	targets := []string{"255.255.255.255:9", directedBroadcast(pm.cfg.Host) + ":9"}
	for _, target := range targets {
		addr, err := net.ResolveUDPAddr("udp4", target)
		if err != nil {
			continue
		}
		if _, err := conn.WriteTo(packet, addr); err != nil {
			pm.logger.Warn("Wake broadcast failed",
				zap.String("target", target),
				zap.Error(err),
			)
		}
	}

	pm.logger.Info("Wake signal sent", zap.String("mac", pm.cfg.MACAddress))
	return nil
}

// MagicPacket builds a wake-on-LAN payload: six 0xFF bytes followed by the
// MAC address repeated sixteen times.
func MagicPacket(mac string) ([]byte, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("invalid MAC address %q: %w", mac, err)
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("MAC address %q is not EUI-48", mac)
	}

	packet := make([]byte, 0, 6+16*6)
	for i := 0; i < 6; i++ {
		packet = append(packet, 0xFF)
	}
	for i := 0; i < 16; i++ {
		packet = append(packet, hw...)
	}
	return packet, nil
}

// directedBroadcast derives the subnet broadcast address for the unit's
// host, assuming a /24 network. Falls back to the universal broadcast when
// the host is not a plain IPv4 address.
func directedBroadcast(host string) string {
	ip := net.ParseIP(host)
	if ip == nil {
		return "255.255.255.255"
	}
	v4 := ip.To4()
	if v4 == nil {
		return "255.255.255.255"
	}
	return fmt.Sprintf("%d.%d.%d.255", v4[0], v4[1], v4[2])
}
