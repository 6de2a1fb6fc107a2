// internal/tascam/power_test.go
package tascam

import (
	"bytes"
	"testing"
	"time"

	"go.uber.org/zap"

	"tascam-bridge/internal/config"
	"tascam-bridge/internal/model"
)

func powerConfig() *config.DeviceConfig {
	return &config.DeviceConfig{
		Host:             "192.168.1.40",
		Port:             9030,
		MACAddress:       "00:11:22:33:44:55",
		OfflineThreshold: 3,
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
	}
}

func TestMagicPacketLayout(t *testing.T) {
	packet, err := MagicPacket("00:11:22:33:44:55")
	if err != nil {
		t.Fatalf("MagicPacket: %v", err)
	}

	if len(packet) != 102 {
		t.Fatalf("packet length = %d, want 102", len(packet))
	}
	if !bytes.Equal(packet[:6], []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}) {
		t.Errorf("packet header = % x, want six 0xFF", packet[:6])
	}

	mac := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	for i := 0; i < 16; i++ {
		chunk := packet[6+i*6 : 6+(i+1)*6]
		if !bytes.Equal(chunk, mac) {
			t.Fatalf("repetition %d = % x, want % x", i, chunk, mac)
		}
	}
}

func TestMagicPacketRejectsBadMAC(t *testing.T) {
	if _, err := MagicPacket("not-a-mac"); err == nil {
		t.Error("expected error for malformed MAC")
	}
}

func TestDirectedBroadcast(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"192.168.1.40", "192.168.1.255"},
		{"10.0.0.5", "10.0.0.255"},
		{"player.local", "255.255.255.255"},
	}
	for _, tt := range tests {
		if got := directedBroadcast(tt.host); got != tt.want {
			t.Errorf("directedBroadcast(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestPowerOffHeuristic(t *testing.T) {
	pm := NewPowerManager(powerConfig(), zap.NewNop())

	if pm.State() != model.PowerUnknown {
		t.Fatalf("initial state = %q, want unknown", pm.State())
	}

	// Two failures are below the threshold of three.
	for i := 0; i < 2; i++ {
		if state, changed := pm.NoteConnectFailure(); changed {
			t.Fatalf("state flipped to %q after %d failures", state, i+1)
		}
	}

	state, changed := pm.NoteConnectFailure()
	if !changed || state != model.PowerOff {
		t.Errorf("after threshold: state=%q changed=%v, want off/true", state, changed)
	}

	// Further failures keep it off without re-reporting a change.
	if _, changed := pm.NoteConnectFailure(); changed {
		t.Error("off state re-reported as a change")
	}
}

func TestPowerOnRequiresActivity(t *testing.T) {
	pm := NewPowerManager(powerConfig(), zap.NewNop())

	// Connectivity alone does not assert on.
	pm.NoteConnected()
	if pm.State() != model.PowerUnknown {
		t.Errorf("state = %q after connect, want unknown until a message decodes", pm.State())
	}

	state, changed := pm.NoteActivity()
	if !changed || state != model.PowerOn {
		t.Errorf("after first message: state=%q changed=%v, want on/true", state, changed)
	}
	if _, changed := pm.NoteActivity(); changed {
		t.Error("on state re-reported as a change")
	}
}

func TestPowerConnectResetsFailureCount(t *testing.T) {
	pm := NewPowerManager(powerConfig(), zap.NewNop())

	pm.NoteConnectFailure()
	pm.NoteConnectFailure()
	pm.NoteConnected()

	// The streak restarts: two more failures must not trip the threshold.
	pm.NoteConnectFailure()
	if _, changed := pm.NoteConnectFailure(); changed {
		t.Error("failure streak survived a successful connect")
	}
}

func TestPowerDisconnectedGoesUnknown(t *testing.T) {
	pm := NewPowerManager(powerConfig(), zap.NewNop())

	pm.NoteActivity()
	state, changed := pm.NoteDisconnected()
	if !changed || state != model.PowerUnknown {
		t.Errorf("after disconnect: state=%q changed=%v, want unknown/true", state, changed)
	}

	// A unit already presumed off stays off across session churn.
	pm.ForceOff()
	if state, changed := pm.NoteDisconnected(); changed || state != model.PowerOff {
		t.Errorf("off unit flipped to %q on disconnect", state)
	}
}
