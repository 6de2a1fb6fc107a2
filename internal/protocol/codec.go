// internal/protocol/codec.go
package protocol

import (
	"bytes"
	"strings"
	"time"

	"tascam-bridge/internal/model"
)

// Wire framing for the BD-MP4K control protocol: ASCII frames prefixed with
// "!7" and terminated with a carriage return. The unit may concatenate
// several "!7" segments into one TCP read and prefix replies with "ack+".
const (
	FramePrefix     = "!7"
	FrameTerminator = '\r'
)

// Aliases maps friendly command names to their protocol bodies.
// Anything not in this table is passed through to the wire verbatim.
var Aliases = map[string]string{
	// Transport
	"play":     "PLY",
	"stop":     "STP",
	"pause":    "PAS",
	"next":     "SKPNX",
	"previous": "SKPPV",
	"ff":       "SCNFf",
	"rw":       "SCNRf",

	// Navigation
	"up":    "OSD3",
	"down":  "OSD4",
	"left":  "OSD1",
	"right": "OSD2",
	"enter": "ENT",
	"back":  "RET",

	// Menus
	"home":       "HOM",
	"setup":      "SMN",
	"top_menu":   "TMN",
	"popup_menu": "PMN",
	"option":     "OMN",
	"info":       "DSP",

	// Audio and utility
	"audio":    "ADG+",
	"subtitle": "SBT1",
	"mute_on":  "MUT00",
	"mute_off": "MUT01",

	// Tray
	"tray_open":  "OPCOP",
	"tray_close": "OPCCL",

	// Power
	"power_on":  "PWR01",
	"power_off": "PWR00",
}

// Status queries sent while polling the unit. The extended set only makes
// sense while media is actively playing.
var (
	PollQueries      = []string{"?SST", "?MUT", "?MST"}
	PollQueriesMedia = []string{"?SET", "?SRT", "?SGN", "?STC", "?STG", "?STT"}
)

// keyPrefixes maps wire opcode prefixes to status keys. Order matters:
// longer prefixes must be tried before their shorter overlaps.
var keyPrefixes = []struct {
	prefix string
	key    model.StatusKey
}{
	{"SST", model.KeyTransport},
	{"MST", model.KeyDiscStatus},
	{"MUT", model.KeyMute},
	{"SET", model.KeyElapsedTime},
	{"SRT", model.KeyRemainingTime},
	{"GNMX", model.KeyTitle},
	{"GNM", model.KeyTitle},
	{"GN", model.KeyTitle},
	{"TGNX", model.KeyTotalTitles},
	{"TTN", model.KeyTotalChapters},
	{"TNM", model.KeyChapter},
	{"TT", model.KeyTotalChapters},
	{"TN", model.KeyChapter},
}

// Encode translates a friendly alias or raw protocol string into a wire
// frame. Unrecognized commands pass through unchanged; the frame prefix and
// terminator are always applied. Encoding is pure and side-effect-free.
func Encode(command string) []byte {
	body := strings.TrimSpace(command)
	if wire, ok := Aliases[strings.ToLower(body)]; ok {
		body = wire
	}
	if !strings.HasPrefix(body, FramePrefix) {
		body = FramePrefix + body
	}
	return []byte(body + string(FrameTerminator))
}

// Decode scans buf for one complete frame. It returns the decoded message and
// the unconsumed remainder, or (nil, buf) when no complete frame is present
// yet and the caller must append more bytes. Decode never discards
// unconsumed input: it either makes progress or asks for more data.
//
// A line carrying several "!7" segments yields the first segment; the rest
// are re-framed into the remainder so subsequent calls see them in order.
func Decode(buf []byte) (*model.Message, []byte) {
	for {
		i := bytes.IndexAny(buf, "\r\n")
		if i < 0 {
			return nil, buf
		}

		line := strings.TrimSpace(string(buf[:i]))
		rest := buf[i+1:]

		// The unit prefixes solicited replies with "ack+"; the payload
		// that follows is a normal frame. Standalone ack/nack handshake
		// tokens carry no status and are dropped.
		line = strings.ReplaceAll(line, "ack+", "")
		if line == "" || line == "ack" || line == "nack" {
			buf = rest
			continue
		}

		seg := line
		if strings.HasPrefix(line, FramePrefix) {
			if j := strings.Index(line[len(FramePrefix):], FramePrefix); j >= 0 {
				cut := j + len(FramePrefix)
				seg = line[:cut]
				rest = append([]byte(line[cut:]+string(FrameTerminator)), rest...)
			}
		}

		msg := classify(seg)
		return &msg, rest
	}
}

// classify maps one frame segment onto its opcode class. Frames that match
// no known class are surfaced with the generic raw key rather than dropped.
func classify(seg string) model.Message {
	msg := model.Message{
		Key:       model.KeyRaw,
		Raw:       seg,
		Timestamp: time.Now(),
	}

	body, ok := strings.CutPrefix(seg, FramePrefix)
	if !ok {
		msg.Value = seg
		return msg
	}
	msg.Value = body

	for _, kp := range keyPrefixes {
		if strings.HasPrefix(body, kp.prefix) {
			msg.Key = kp.key
			msg.Value = body[len(kp.prefix):]
			break
		}
	}
	return msg
}
