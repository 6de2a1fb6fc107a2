// internal/protocol/states.go
package protocol

import (
	"regexp"
	"strconv"
	"strings"
)

// transportStates maps SST payload codes to readable transport states
// (BD-MP4K protocol section 5.3).
var transportStates = map[string]string{
	"PL":   "playing",
	"PP":   "paused",
	"ST":   "stopped",
	"DVFF": "fast_forward",
	"DVFR": "fast_reverse",
	"DVSF": "slow_forward",
	"DVSR": "slow_reverse",
	"DVSU": "setup_menu",
	"DVHM": "home_menu",
	"DVMC": "media_center",
	"DVTR": "root_menu",
	"DVPL": "powering_on",
}

// discStates maps the two-character MST payload codes.
var discStates = map[string]string{
	"NC": "no_media",
	"CI": "disc",
	"TO": "tray_open",
	"TC": "tray_closed",
	"TE": "tray_error",
	"UF": "unknown",
}

// MediaActiveStates are the SST codes during which time/title/chapter
// metadata is meaningful and worth polling.
var MediaActiveStates = map[string]bool{
	"PL": true, "PP": true, "DVFF": true, "DVFR": true, "DVSF": true, "DVSR": true,
}

// TransportStateName returns a readable name for an SST payload,
// or "unknown" for codes outside the protocol map.
func TransportStateName(code string) string {
	if name, ok := transportStates[code]; ok {
		return name
	}
	return "unknown"
}

// DiscStateName returns a readable name for an MST payload. Only the first
// two characters carry the tray/source code.
func DiscStateName(code string) string {
	if len(code) >= 2 {
		if name, ok := discStates[code[:2]]; ok {
			return name
		}
	}
	return "unknown"
}

// TrayOpen reports whether an MST payload indicates an ejected tray.
func TrayOpen(code string) bool {
	return strings.HasPrefix(code, "TO")
}

// Muted reports whether a MUT payload indicates engaged muting.
// The unit reports 00 for muted and 01 for unmuted.
func Muted(code string) bool {
	return strings.Contains(code, "00")
}

var clockPattern = regexp.MustCompile(`(\d{3})(\d{2})(\d{2})$`)

// ClockSeconds converts the unit's HHHMMSS time payload into seconds.
// Malformed or transitional ("UNKN") payloads yield zero.
func ClockSeconds(payload string) int {
	m := clockPattern.FindStringSubmatch(payload)
	if m == nil {
		return 0
	}
	hhh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	ss, _ := strconv.Atoi(m[3])
	return hhh*3600 + mm*60 + ss
}

// CounterValue normalizes a title/chapter counter payload: digits only,
// leading zeros stripped, transitional values reported as "0".
func CounterValue(payload string) string {
	if strings.Contains(payload, "UNKN") {
		return "0"
	}
	var digits strings.Builder
	for _, r := range payload {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	v := strings.TrimLeft(digits.String(), "0")
	if v == "" {
		return "0"
	}
	return v
}
