// internal/protocol/codec_test.go
package protocol

import (
	"bytes"
	"testing"

	"tascam-bridge/internal/model"
)

func TestEncodeAlias(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"play", "!7PLY\r"},
		{"power_off", "!7PWR00\r"},
		{"mute_on", "!7MUT00\r"},
		{"top_menu", "!7TMN\r"},
		{"PLAY", "!7PLY\r"}, // aliases are case-insensitive
	}

	for _, tt := range tests {
		got := Encode(tt.command)
		if string(got) != tt.want {
			t.Errorf("Encode(%q) = %q, want %q", tt.command, got, tt.want)
		}
	}
}

func TestEncodeRawPassthrough(t *testing.T) {
	// Unknown commands go out byte-for-byte, framed.
	if got := Encode("NUM3"); string(got) != "!7NUM3\r" {
		t.Errorf("Encode(NUM3) = %q, want !7NUM3\\r", got)
	}

	// An already-prefixed raw command is not double-prefixed.
	if got := Encode("!7OPCOP"); string(got) != "!7OPCOP\r" {
		t.Errorf("Encode(!7OPCOP) = %q, want !7OPCOP\\r", got)
	}

	// Queries pass through unchanged.
	if got := Encode("?SST"); string(got) != "!7?SST\r" {
		t.Errorf("Encode(?SST) = %q, want !7?SST\\r", got)
	}
}

func TestDecodeSingleFrame(t *testing.T) {
	msg, rest := Decode([]byte("!7SSTPL\r"))
	if msg == nil {
		t.Fatal("Decode returned nil for a complete frame")
	}
	if msg.Key != model.KeyTransport {
		t.Errorf("key = %q, want %q", msg.Key, model.KeyTransport)
	}
	if msg.Value != "PL" {
		t.Errorf("value = %q, want PL", msg.Value)
	}
	if msg.Raw != "!7SSTPL" {
		t.Errorf("raw = %q, want !7SSTPL", msg.Raw)
	}
	if len(rest) != 0 {
		t.Errorf("remainder = %q, want empty", rest)
	}
}

func TestDecodePartialFrame(t *testing.T) {
	buf := []byte("!7SST")

	msg, rest := Decode(buf)
	if msg != nil {
		t.Fatalf("Decode returned %+v for an incomplete frame", msg)
	}
	if !bytes.Equal(rest, buf) {
		t.Errorf("remainder = %q, want untouched buffer %q", rest, buf)
	}

	// Appending the rest of the frame completes the decode.
	rest = append(rest, []byte("PL\r")...)
	msg, rest = Decode(rest)
	if msg == nil || msg.Raw != "!7SSTPL" {
		t.Fatalf("Decode after reassembly = %+v, want !7SSTPL", msg)
	}
	if len(rest) != 0 {
		t.Errorf("remainder = %q, want empty", rest)
	}
}

func TestDecodeConcatenatedSegments(t *testing.T) {
	// The unit may pack several segments into one read, ack-prefixed.
	buf := []byte("ack+!7SSTPL!7MUT01\r!7MSTCI\r")

	var raws []string
	for {
		msg, rest := Decode(buf)
		if msg == nil {
			break
		}
		raws = append(raws, msg.Raw)
		buf = rest
	}

	want := []string{"!7SSTPL", "!7MUT01", "!7MSTCI"}
	if len(raws) != len(want) {
		t.Fatalf("decoded %d segments %v, want %v", len(raws), raws, want)
	}
	for i := range want {
		if raws[i] != want[i] {
			t.Errorf("segment %d = %q, want %q", i, raws[i], want[i])
		}
	}
}

func TestDecodeSkipsHandshakeTokens(t *testing.T) {
	// Bare ack/nack lines carry no status and never reach the stream.
	buf := []byte("ack\r!7SSTPL\rnack\r!7MUT01\r")

	var raws []string
	for {
		msg, rest := Decode(buf)
		if msg == nil {
			break
		}
		raws = append(raws, msg.Raw)
		buf = rest
	}

	want := []string{"!7SSTPL", "!7MUT01"}
	if len(raws) != len(want) {
		t.Fatalf("decoded %v, want %v", raws, want)
	}
	for i := range want {
		if raws[i] != want[i] {
			t.Errorf("segment %d = %q, want %q", i, raws[i], want[i])
		}
	}
}

func TestDecodeUnknownFrameSurfaced(t *testing.T) {
	msg, _ := Decode([]byte("!7XQZ99\r"))
	if msg == nil {
		t.Fatal("unknown frame was dropped")
	}
	if msg.Key != model.KeyRaw {
		t.Errorf("key = %q, want generic %q", msg.Key, model.KeyRaw)
	}
	if msg.Raw != "!7XQZ99" {
		t.Errorf("raw = %q, want !7XQZ99", msg.Raw)
	}
}

func TestDecodeIdempotent(t *testing.T) {
	buf := []byte("!7MSTTO\r")

	first, _ := Decode(append([]byte(nil), buf...))
	second, _ := Decode(append([]byte(nil), buf...))

	if first == nil || second == nil {
		t.Fatal("Decode returned nil")
	}
	if first.Key != second.Key || first.Value != second.Value || first.Raw != second.Raw {
		t.Errorf("decoding the same buffer twice differed: %+v vs %+v", first, second)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// A frame produced by Encode decodes back to the same wire form.
	for alias := range Aliases {
		frame := Encode(alias)
		msg, rest := Decode(frame)
		if msg == nil {
			t.Fatalf("Decode(Encode(%q)) returned nil", alias)
		}
		if len(rest) != 0 {
			t.Errorf("Decode(Encode(%q)) left remainder %q", alias, rest)
		}
		if again := Encode(msg.Raw); !bytes.Equal(again, frame) {
			t.Errorf("round trip for %q: %q != %q", alias, again, frame)
		}
	}
}

func TestDecodeKeyClassification(t *testing.T) {
	tests := []struct {
		raw  string
		key  model.StatusKey
		want string
	}{
		{"!7SSTDVHM\r", model.KeyTransport, "DVHM"},
		{"!7MSTTC\r", model.KeyDiscStatus, "TC"},
		{"!7MUT00\r", model.KeyMute, "00"},
		{"!7SET0010512\r", model.KeyElapsedTime, "0010512"},
		{"!7SRT0000048\r", model.KeyRemainingTime, "0000048"},
		{"!7GNM02\r", model.KeyTitle, "02"},
		{"!7TGNX05\r", model.KeyTotalTitles, "05"},
		{"!7TNM011\r", model.KeyChapter, "011"},
		{"!7TTN024\r", model.KeyTotalChapters, "024"},
	}

	for _, tt := range tests {
		msg, _ := Decode([]byte(tt.raw))
		if msg == nil {
			t.Fatalf("Decode(%q) returned nil", tt.raw)
		}
		if msg.Key != tt.key || msg.Value != tt.want {
			t.Errorf("Decode(%q) = {%s %q}, want {%s %q}",
				tt.raw, msg.Key, msg.Value, tt.key, tt.want)
		}
	}
}

func TestClockSeconds(t *testing.T) {
	tests := []struct {
		payload string
		want    int
	}{
		{"0010512", 1*3600 + 5*60 + 12},
		{"0000048", 48},
		{"UNKN", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ClockSeconds(tt.payload); got != tt.want {
			t.Errorf("ClockSeconds(%q) = %d, want %d", tt.payload, got, tt.want)
		}
	}
}

func TestCounterValue(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{"007", "7"},
		{"000", "0"},
		{"UNKN", "0"},
		{"X12", "12"},
	}
	for _, tt := range tests {
		if got := CounterValue(tt.payload); got != tt.want {
			t.Errorf("CounterValue(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}
