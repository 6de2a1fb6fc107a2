// internal/model/message.go
package model

import (
	"time"
)

// StatusKey represents the opcode class of a decoded protocol message
type StatusKey string

const (
	// Hardware status keys reported by the unit
	KeyTransport     StatusKey = "SST" // transport / playback state
	KeyDiscStatus    StatusKey = "MST" // media source and tray state
	KeyMute          StatusKey = "MUT" // audio mute state
	KeyElapsedTime   StatusKey = "SET" // elapsed playback time
	KeyRemainingTime StatusKey = "SRT" // remaining playback time
	KeyTitle         StatusKey = "GN"  // current title index
	KeyTotalTitles   StatusKey = "TGN" // total title count
	KeyChapter       StatusKey = "TN"  // current chapter index
	KeyTotalChapters StatusKey = "TT"  // total chapter count

	// Synthesized keys, never sent by the unit itself
	KeyPower StatusKey = "PWR" // inferred power state

	// KeyRaw marks frames that matched no known opcode class. They still
	// flow through the cache and event sink so nothing is silently dropped.
	KeyRaw StatusKey = "RAW"
)

// Message is a single decoded protocol frame.
// Immutable once constructed; handed around by value.
type Message struct {
	Key       StatusKey `json:"key"`
	Value     string    `json:"value"`
	Raw       string    `json:"raw"`
	Timestamp time.Time `json:"timestamp"`
}

// PowerState is the synthesized power state of the unit. The protocol has no
// power-query opcode, so this is inferred from connectivity and message
// activity and is best-effort, not authoritative.
type PowerState string

const (
	PowerOn      PowerState = "on"
	PowerOff     PowerState = "off"
	PowerUnknown PowerState = "unknown"
)

// DeviceState is a point-in-time snapshot of the last-known value for every
// status key, plus the synthesized power state. Snapshots are copies; mutating
// one never affects the live cache.
type DeviceState struct {
	Values    map[StatusKey]string `json:"values"`
	Power     PowerState           `json:"power"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Get returns the last-known value for a key, or "" if never reported.
func (s DeviceState) Get(key StatusKey) string {
	return s.Values[key]
}

// CommandRequest records one outbound command. Its lifecycle ends when the
// frame is handed to the socket; the protocol gives no delivery confirmation.
type CommandRequest struct {
	Command  string    `json:"command"` // friendly alias or raw protocol body
	Frame    string    `json:"frame"`   // encoded wire form
	IssuedAt time.Time `json:"issued_at"`
}
