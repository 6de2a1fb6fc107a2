// internal/tascam/state.go
package tascam

import (
	"sync"
	"time"

	"tascam-bridge/internal/model"
)

// StateCache holds the last-known value for every status key plus the
// synthesized power state. Mutation is confined to the decode-apply path;
// any number of readers may take snapshots concurrently.
//
// The cache is deliberately dumb: values are stored exactly as decoded, with
// no semantic validation. Structured parsing is the caller's job.
type StateCache struct {
	mu        sync.RWMutex
	values    map[model.StatusKey]string
	power     model.PowerState
	updatedAt time.Time
}

// NewStateCache creates an empty state cache
func NewStateCache() *StateCache {
	return &StateCache{
		values: make(map[model.StatusKey]string),
		power:  model.PowerUnknown,
	}
}

// Apply upserts the message's value under its key and returns the prior
// value, for edge detection by callers. The latest applied value always
// wins; nothing is ever rolled back.
func (sc *StateCache) Apply(msg model.Message) (prior string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	prior = sc.values[msg.Key]
	sc.values[msg.Key] = msg.Value
	sc.updatedAt = msg.Timestamp
	return prior
}

// SetPower records the inferred power state and returns the prior state.
func (sc *StateCache) SetPower(state model.PowerState) (prior model.PowerState) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	prior = sc.power
	sc.power = state
	sc.updatedAt = time.Now()
	return prior
}

// Power returns the current inferred power state.
func (sc *StateCache) Power() model.PowerState {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.power
}

// Get returns the last-known value for a key, or "" if never reported.
func (sc *StateCache) Get(key model.StatusKey) string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.values[key]
}

// Snapshot returns an immutable copy of the device state. The returned map
// is owned by the caller; concurrent Apply calls never mutate it.
func (sc *StateCache) Snapshot() model.DeviceState {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	values := make(map[model.StatusKey]string, len(sc.values))
	for k, v := range sc.values {
		values[k] = v
	}
	return model.DeviceState{
		Values:    values,
		Power:     sc.power,
		UpdatedAt: sc.updatedAt,
	}
}

// ClearMetadata resets playback counters and times. Called when the unit
// goes away so stale progress does not survive a power cycle. Transport,
// power, and mute state are left to their own transitions.
func (sc *StateCache) ClearMetadata() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	for _, key := range []model.StatusKey{
		model.KeyElapsedTime, model.KeyRemainingTime,
		model.KeyTitle, model.KeyTotalTitles,
		model.KeyChapter, model.KeyTotalChapters,
		model.KeyDiscStatus,
	} {
		delete(sc.values, key)
	}
	sc.updatedAt = time.Now()
}
